// Package fixed implements an integer-backed decimal used for every monetary
// quantity in the close calculator. A value carries no scale of its own; the
// caller decides whether an Int holds USD (1e30), basis points (1e4), a
// funding-rate accumulator, or a token-native amount, and rescales with
// MulDiv when combining kinds.
//
// Values are immutable. Every operation allocates a fresh result, so an Int can
// be shared freely between goroutines. Results are bounded to the signed
// 256-bit range; anything outside it fails with ErrOverflow.
package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

var (
	// ErrOverflow is returned when a result leaves the signed 256-bit range.
	ErrOverflow = errors.New("fixed: arithmetic overflow")
	// ErrDivisionByZero is returned by Div and MulDiv on a zero divisor.
	ErrDivisionByZero = errors.New("fixed: division by zero")
)

var (
	maxInt = new(big.Int).Sub(math.BigPow(2, 255), big.NewInt(1))
	minInt = new(big.Int).Neg(math.BigPow(2, 255))
	zero   = new(big.Int)
)

// Int is a signed fixed-point integer. The zero value is 0.
type Int struct {
	v *big.Int
}

// Zero returns 0.
func Zero() Int { return Int{} }

// New returns x as an Int.
func New(x int64) Int { return Int{v: big.NewInt(x)} }

// FromBig copies x into an Int. A nil x is 0.
func FromBig(x *big.Int) (Int, error) {
	if x == nil {
		return Int{}, nil
	}
	return checked(new(big.Int).Set(x))
}

// Pow10 returns 10^n. It panics if n is negative or the result would not
// fit, which only happens on a programming error in a scale constant.
func Pow10(n int) Int {
	return Expand(1, n)
}

// Expand returns x * 10^decimals, the usual way to build a scaled constant
// such as "10 USD" (Expand(10, 30)).
func Expand(x int64, decimals int) Int {
	if decimals < 0 {
		panic("fixed: negative decimals")
	}
	r := new(big.Int).Mul(big.NewInt(x), math.BigPow(10, int64(decimals)))
	out, err := checked(r)
	if err != nil {
		panic(fmt.Sprintf("fixed: expand %d by %d decimals: %v", x, decimals, err))
	}
	return out
}

func checked(r *big.Int) (Int, error) {
	if r.Cmp(maxInt) > 0 || r.Cmp(minInt) < 0 {
		return Int{}, ErrOverflow
	}
	return Int{v: r}, nil
}

func (a Int) big() *big.Int {
	if a.v == nil {
		return zero
	}
	return a.v
}

// Big returns a copy of the underlying integer.
func (a Int) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

// Add returns a + b.
func (a Int) Add(b Int) (Int, error) {
	return checked(new(big.Int).Add(a.big(), b.big()))
}

// Sub returns a - b.
func (a Int) Sub(b Int) (Int, error) {
	return checked(new(big.Int).Sub(a.big(), b.big()))
}

// Mul returns a * b. No rescaling is applied.
func (a Int) Mul(b Int) (Int, error) {
	return checked(new(big.Int).Mul(a.big(), b.big()))
}

// Div returns a / b truncated toward zero.
func (a Int) Div(b Int) (Int, error) {
	if b.IsZero() {
		return Int{}, ErrDivisionByZero
	}
	return checked(new(big.Int).Quo(a.big(), b.big()))
}

// MulDiv returns a * b / c truncated toward zero. The intermediate product is
// bounds-checked as well, so a result that fits but whose product does not
// still fails with ErrOverflow.
func (a Int) MulDiv(b, c Int) (Int, error) {
	if c.IsZero() {
		return Int{}, ErrDivisionByZero
	}
	p, err := checked(new(big.Int).Mul(a.big(), b.big()))
	if err != nil {
		return Int{}, err
	}
	return checked(p.v.Quo(p.v, c.big()))
}

// Neg returns -a.
func (a Int) Neg() (Int, error) {
	return checked(new(big.Int).Neg(a.big()))
}

// Abs returns |a|.
func (a Int) Abs() (Int, error) {
	return checked(new(big.Int).Abs(a.big()))
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Int) Cmp(b Int) int { return a.big().Cmp(b.big()) }

// Sign returns -1, 0 or +1.
func (a Int) Sign() int { return a.big().Sign() }

// IsZero reports whether a == 0.
func (a Int) IsZero() bool { return a.Sign() == 0 }

// Eq reports whether a == b.
func (a Int) Eq(b Int) bool { return a.Cmp(b) == 0 }

// Gt reports whether a > b.
func (a Int) Gt(b Int) bool { return a.Cmp(b) > 0 }

// Gte reports whether a >= b.
func (a Int) Gte(b Int) bool { return a.Cmp(b) >= 0 }

// Lt reports whether a < b.
func (a Int) Lt(b Int) bool { return a.Cmp(b) < 0 }

// Lte reports whether a <= b.
func (a Int) Lte(b Int) bool { return a.Cmp(b) <= 0 }

// Ptr returns a pointer to a copy of a, for optional fields.
func (a Int) Ptr() *Int { return &a }

// Max returns the larger of a and b.
func Max(a, b Int) Int {
	if a.Gte(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Int) Int {
	if a.Lte(b) {
		return a
	}
	return b
}

// String returns the raw integer in base 10.
func (a Int) String() string { return a.big().String() }

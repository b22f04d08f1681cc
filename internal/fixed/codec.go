package fixed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// MarshalText encodes the raw integer in base 10.
func (a Int) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts a base-10 or 0x-prefixed hex integer with an optional
// leading minus sign.
func (a *Int) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return fmt.Errorf("fixed: invalid integer %q", string(text))
	}
	if neg {
		v.Neg(v)
	}
	out, err := checked(v)
	if err != nil {
		return err
	}
	*a = out
	return nil
}

// MarshalJSON encodes the integer as a JSON string so 1e30-scaled values
// survive JavaScript clients.
func (a Int) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted or a bare integer.
func (a *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Int{}
		return nil
	}
	return a.UnmarshalText(bytes.Trim(data, `"`))
}

// Parse converts a human decimal string such as "999.5" into an Int scaled by
// 10^decimals. Digits beyond the scale are truncated toward zero.
func Parse(s string, decimals int) (Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Int{}, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return FromBig(d.Shift(int32(decimals)).BigInt())
}

// ParseOptional is Parse for user input: a blank string yields nil rather than
// an error, since "not entered yet" is a legitimate state.
func ParseOptional(s string, decimals int) (*Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := Parse(s, decimals)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Decimal returns a as a decimal with the given scale removed.
func (a Int) Decimal(decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), -int32(decimals))
}

// Format renders a with the scale removed, truncated to places fractional
// digits. When grouped is set the integer part uses comma thousands
// separators ("1,234.56").
func Format(a Int, decimals int, places int32, grouped bool) string {
	s := a.Decimal(decimals).Truncate(places).StringFixed(places)
	if !grouped {
		return s
	}
	return group(s)
}

func group(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}
	var b strings.Builder
	head := len(intPart) % 3
	if head > 0 {
		b.WriteString(intPart[:head])
	}
	for i := head; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}

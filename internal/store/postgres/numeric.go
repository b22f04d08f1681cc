package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

var bigTen = big.NewInt(10)

// numeric encodes v for a NUMERIC(78,0) column.
func numeric(v fixed.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: v.Big(), Valid: true}
}

// optionalNumeric encodes a nil v as SQL NULL.
func optionalNumeric(v *fixed.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return numeric(*v)
}

// fromNumeric decodes an integral NUMERIC. Postgres may hand back trailing
// zeros as a positive exponent; a fractional value is rejected.
func fromNumeric(n pgtype.Numeric) (fixed.Int, error) {
	if !n.Valid {
		return fixed.Zero(), nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return fixed.Int{}, fmt.Errorf("postgres: non-finite numeric")
	}
	if n.Int == nil {
		return fixed.Zero(), nil
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(bigTen, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		div := new(big.Int).Exp(bigTen, big.NewInt(int64(-n.Exp)), nil)
		q, r := new(big.Int).QuoRem(v, div, new(big.Int))
		if r.Sign() != 0 {
			return fixed.Int{}, fmt.Errorf("postgres: numeric %se%d is not integral", n.Int, n.Exp)
		}
		v = q
	}
	return fixed.FromBig(v)
}

func fromOptionalNumeric(n pgtype.Numeric) (*fixed.Int, error) {
	if !n.Valid {
		return nil, nil
	}
	v, err := fromNumeric(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

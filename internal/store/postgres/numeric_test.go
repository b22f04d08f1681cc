package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

func TestFromNumericExponent(t *testing.T) {
	v, err := fromNumeric(pgtype.Numeric{Int: big.NewInt(25), Exp: 29, Valid: true})
	require.NoError(t, err)
	assert.True(t, v.Eq(fixed.Expand(250, 28)))

	v, err = fromNumeric(pgtype.Numeric{Int: big.NewInt(1200), Exp: -2, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "12", v.String())

	_, err = fromNumeric(pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true})
	assert.Error(t, err)

	_, err = fromNumeric(pgtype.Numeric{NaN: true, Valid: true, Int: big.NewInt(0)})
	assert.Error(t, err)
}

func TestOptionalNumeric(t *testing.T) {
	assert.False(t, optionalNumeric(nil).Valid)

	enc := optionalNumeric(fixed.Expand(-3, 30).Ptr())
	require.True(t, enc.Valid)
	back, err := fromOptionalNumeric(enc)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, back.Eq(fixed.Expand(-3, 30)))

	none, err := fromOptionalNumeric(pgtype.Numeric{})
	require.NoError(t, err)
	assert.Nil(t, none)
}

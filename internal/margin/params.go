// Package margin holds the perpetual-vault margin formulas: position delta,
// funding and closing fees, leverage, liquidation price and the
// minimum-profit rule. All amounts are fixed.Int at the USD 1e30 scale unless
// the field says otherwise.
package margin

import (
	"time"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

const (
	USDDecimals = 30
	// LiquidationFeeUSD is the default fixed fee charged on liquidation.
	LiquidationFeeUSD = 5
)

var (
	// BasisPointsDivisor is 100% in basis points.
	BasisPointsDivisor = fixed.New(10_000)
	// Precision is 1 USD.
	Precision = fixed.Pow10(USDDecimals)
)

// Params are the vault's margin constants.
type Params struct {
	// MarginFeeBasisPoints is the closing fee charged on decreased notional.
	MarginFeeBasisPoints fixed.Int
	LiquidationFee       fixed.Int
	// MaxLeverage is the leverage, in basis points, at which a position is
	// liquidated regardless of fees.
	MaxLeverage fixed.Int
	// MinProfitBasisPoints is the share of size a young position must be in
	// profit by before that profit is realizable.
	MinProfitBasisPoints fixed.Int
	MinProfitWindow      time.Duration
	FundingRatePrecision fixed.Int
}

// DefaultParams returns the production vault constants.
func DefaultParams() Params {
	return Params{
		MarginFeeBasisPoints: fixed.New(10),
		LiquidationFee:       fixed.Expand(LiquidationFeeUSD, USDDecimals),
		MaxLeverage:          fixed.New(100 * 10_000),
		MinProfitBasisPoints: fixed.New(150),
		MinProfitWindow:      12 * time.Hour,
		FundingRatePrecision: fixed.New(1_000_000),
	}
}

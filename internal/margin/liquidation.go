package margin

import (
	"fmt"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// LiquidationInput describes a position, optionally after a decrease.
type LiquidationInput struct {
	IsLong                bool
	Size                  fixed.Int
	SizeDelta             *fixed.Int
	Collateral            fixed.Int
	CollateralDelta       *fixed.Int
	AveragePrice          fixed.Int
	EntryFundingRate      *fixed.Int
	CumulativeFundingRate *fixed.Int
}

// LiquidationPrice returns the index price at which the position (after the
// decrease in in) becomes liquidatable. Two thresholds apply: remaining
// collateral no longer covering closing, liquidation and funding fees, and
// leverage reaching MaxLeverage. The nearer of the two to the average price
// wins. The result is nil when the inputs describe no open position.
func (p Params) LiquidationPrice(in LiquidationInput) (*fixed.Int, error) {
	if in.Size.IsZero() || in.Collateral.IsZero() || in.AveragePrice.IsZero() {
		return nil, nil
	}

	var c fixed.Calc
	nextSize := in.Size
	remaining := in.Collateral
	if in.SizeDelta != nil && !in.SizeDelta.IsZero() {
		if in.SizeDelta.Gte(in.Size) {
			return nil, nil
		}
		nextSize = c.Sub(in.Size, *in.SizeDelta)
		marginFee, err := p.PositionFee(*in.SizeDelta)
		if err != nil {
			return nil, err
		}
		remaining = c.Sub(remaining, marginFee)
	}
	if in.CollateralDelta != nil && !in.CollateralDelta.IsZero() {
		if in.CollateralDelta.Gte(remaining) {
			return nil, nil
		}
		remaining = c.Sub(remaining, *in.CollateralDelta)
	}

	closeFee, err := p.PositionFee(in.Size)
	if err != nil {
		return nil, err
	}
	liqFees := c.Add(closeFee, p.LiquidationFee)
	funding, err := p.FundingFee(in.Size, in.EntryFundingRate, in.CumulativeFundingRate)
	if err != nil {
		return nil, err
	}
	if funding != nil {
		liqFees = c.Add(liqFees, *funding)
	}
	maxLevAmount := c.MulDiv(nextSize, BasisPointsDivisor, p.MaxLeverage)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: liquidation price: %w", err)
	}

	forFees, err := priceFromDelta(liqFees, nextSize, remaining, in.AveragePrice, in.IsLong)
	if err != nil {
		return nil, err
	}
	forMaxLeverage, err := priceFromDelta(maxLevAmount, nextSize, remaining, in.AveragePrice, in.IsLong)
	if err != nil {
		return nil, err
	}
	switch {
	case forFees == nil:
		return forMaxLeverage, nil
	case forMaxLeverage == nil:
		return forFees, nil
	case in.IsLong:
		return fixed.Max(*forFees, *forMaxLeverage).Ptr(), nil
	default:
		return fixed.Min(*forFees, *forMaxLeverage).Ptr(), nil
	}
}

// priceFromDelta solves for the price at which the position's PnL brings
// collateral down to liquidationAmount.
func priceFromDelta(liquidationAmount, size, collateral, averagePrice fixed.Int, isLong bool) (*fixed.Int, error) {
	if size.IsZero() {
		return nil, nil
	}
	var c fixed.Calc
	// Collateral above the liquidation amount means the price has room to
	// move against the trader before liquidation.
	adverse := liquidationAmount.Lte(collateral)
	liqDelta := c.Abs(c.Sub(collateral, liquidationAmount))
	priceDelta := c.MulDiv(liqDelta, averagePrice, size)

	var price fixed.Int
	if adverse == isLong {
		price = c.Sub(averagePrice, priceDelta)
	} else {
		price = c.Add(averagePrice, priceDelta)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: liquidation price from delta: %w", err)
	}
	return &price, nil
}

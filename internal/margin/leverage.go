package margin

import (
	"fmt"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// LeverageInput describes a position, optionally after a decrease.
type LeverageInput struct {
	Size                  fixed.Int
	SizeDelta             *fixed.Int
	Collateral            fixed.Int
	CollateralDelta       *fixed.Int
	EntryFundingRate      *fixed.Int
	CumulativeFundingRate *fixed.Int
	HasProfit             bool
	Delta                 *fixed.Int
	// IncludeDelta counts unrealized PnL as collateral.
	IncludeDelta bool
}

// Leverage returns size / collateral in basis points after applying the
// decrease in in. The margin fee is taken from the remaining collateral when
// size decreases, and the accrued funding fee always is. The result is nil
// when the position would be fully closed or left without collateral.
func (p Params) Leverage(in LeverageInput) (*fixed.Int, error) {
	if in.Size.IsZero() && (in.SizeDelta == nil || in.SizeDelta.IsZero()) {
		return nil, nil
	}
	if in.Collateral.IsZero() && (in.CollateralDelta == nil || in.CollateralDelta.IsZero()) {
		return nil, nil
	}

	var c fixed.Calc
	nextSize := in.Size
	if in.SizeDelta != nil && !in.SizeDelta.IsZero() {
		if in.SizeDelta.Gte(in.Size) {
			return nil, nil
		}
		nextSize = c.Sub(in.Size, *in.SizeDelta)
	}

	remaining := in.Collateral
	if in.CollateralDelta != nil && !in.CollateralDelta.IsZero() {
		if in.CollateralDelta.Gte(remaining) {
			return nil, nil
		}
		remaining = c.Sub(remaining, *in.CollateralDelta)
	}

	if in.Delta != nil && in.IncludeDelta {
		if in.HasProfit {
			remaining = c.Add(remaining, *in.Delta)
		} else {
			if in.Delta.Gt(remaining) {
				return nil, nil
			}
			remaining = c.Sub(remaining, *in.Delta)
		}
	}
	if remaining.IsZero() {
		return nil, nil
	}

	if in.SizeDelta != nil && !in.SizeDelta.IsZero() {
		remaining = c.MulDiv(remaining, c.Sub(BasisPointsDivisor, p.MarginFeeBasisPoints), BasisPointsDivisor)
	}
	funding, err := p.FundingFee(in.Size, in.EntryFundingRate, in.CumulativeFundingRate)
	if err != nil {
		return nil, err
	}
	if funding != nil {
		remaining = c.Sub(remaining, *funding)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: leverage: %w", err)
	}
	if remaining.Sign() <= 0 {
		return nil, nil
	}

	lev := c.MulDiv(nextSize, BasisPointsDivisor, remaining)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: leverage: %w", err)
	}
	return &lev, nil
}

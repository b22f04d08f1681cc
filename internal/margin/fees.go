package margin

import (
	"fmt"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// FundingFee returns size * (cumulative - entry) / precision. It is nil when
// either accumulator is missing.
func (p Params) FundingFee(size fixed.Int, entry, cumulative *fixed.Int) (*fixed.Int, error) {
	if entry == nil || cumulative == nil {
		return nil, nil
	}
	var c fixed.Calc
	rate := c.Sub(*cumulative, *entry)
	fee := c.MulDiv(size, rate, p.FundingRatePrecision)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: funding fee: %w", err)
	}
	return &fee, nil
}

// PositionFee returns the closing fee on sizeDelta.
func (p Params) PositionFee(sizeDelta fixed.Int) (fixed.Int, error) {
	fee, err := sizeDelta.MulDiv(p.MarginFeeBasisPoints, BasisPointsDivisor)
	if err != nil {
		return fixed.Int{}, fmt.Errorf("margin: position fee: %w", err)
	}
	return fee, nil
}

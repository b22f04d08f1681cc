package margin

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// Delta is the unrealized PnL of a position at one reference price.
type Delta struct {
	// Delta is the realizable PnL magnitude. It is zero while a young
	// position's profit is inside the minimum-profit band.
	Delta fixed.Int `json:"delta"`
	// Pending is the raw PnL magnitude before the minimum-profit rule.
	Pending   fixed.Int `json:"pending"`
	HasProfit bool      `json:"has_profit"`
	// Percentages are in basis points of collateral.
	Percentage        fixed.Int `json:"percentage"`
	PendingPercentage fixed.Int `json:"pending_percentage"`
}

// PositionDelta evaluates pos at price. When sizeDelta is non-nil the PnL is
// computed for that notional instead of the whole size; the minimum-profit
// threshold is always measured against the whole size.
//
// A position with zero size or zero average price has no delta.
func (p Params) PositionDelta(price fixed.Int, pos domain.Position, sizeDelta *fixed.Int, now time.Time) (Delta, error) {
	size := pos.Size
	if sizeDelta != nil {
		size = *sizeDelta
	}
	if pos.Size.IsZero() || pos.AveragePrice.IsZero() {
		return Delta{}, nil
	}

	var c fixed.Calc
	priceDelta := c.Abs(c.Sub(price, pos.AveragePrice))
	delta := c.MulDiv(size, priceDelta, pos.AveragePrice)
	pending := delta

	hasProfit := price.Gt(pos.AveragePrice)
	if !pos.IsLong {
		hasProfit = price.Lt(pos.AveragePrice)
	}

	if hasProfit && !p.MinProfitExpired(pos, now) {
		scaled := c.Mul(delta, BasisPointsDivisor)
		threshold := c.Mul(pos.Size, p.MinProfitBasisPoints)
		if scaled.Lte(threshold) {
			delta = fixed.Zero()
		}
	}

	out := Delta{Delta: delta, Pending: pending, HasProfit: hasProfit}
	if !pos.Collateral.IsZero() {
		out.Percentage = c.MulDiv(delta, BasisPointsDivisor, pos.Collateral)
		out.PendingPercentage = c.MulDiv(pending, BasisPointsDivisor, pos.Collateral)
	}
	if err := c.Err(); err != nil {
		return Delta{}, fmt.Errorf("margin: position delta: %w", err)
	}
	return out, nil
}

// MinProfitExpiry is the instant after which the minimum-profit rule stops
// applying to pos.
func (p Params) MinProfitExpiry(pos domain.Position) time.Time {
	return pos.LastIncreasedTime.Add(p.MinProfitWindow)
}

// MinProfitExpired reports whether now is past the minimum-profit window.
func (p Params) MinProfitExpired(pos domain.Position, now time.Time) bool {
	return now.After(p.MinProfitExpiry(pos))
}

// ProfitPrice is the price the position must cross for its profit to be
// realizable inside the minimum-profit window. It is nil when no close
// price is known yet.
func (p Params) ProfitPrice(closePrice *fixed.Int, pos domain.Position) (*fixed.Int, error) {
	if closePrice == nil || closePrice.IsZero() || pos.AveragePrice.IsZero() {
		return nil, nil
	}
	var c fixed.Calc
	bps := c.Add(BasisPointsDivisor, p.MinProfitBasisPoints)
	if !pos.IsLong {
		bps = c.Sub(BasisPointsDivisor, p.MinProfitBasisPoints)
	}
	price := c.MulDiv(pos.AveragePrice, bps, BasisPointsDivisor)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("margin: profit price: %w", err)
	}
	return &price, nil
}

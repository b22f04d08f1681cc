package closeplan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
)

// tokenAddress maps the native currency to its wrapped token, which is what
// the contracts expect.
func (c *Calculator) tokenAddress(t domain.Token) common.Address {
	if t.IsNative {
		return c.native
	}
	return t.Address
}

// DecreaseOrder builds the order book request for a trigger close.
func (c *Calculator) DecreaseOrder(in Input, p Plan, executionFee *big.Int) (domain.DecreaseOrderRequest, error) {
	trigger := in.triggerPrice()
	if trigger == nil || p.SizeDelta.IsZero() {
		return domain.DecreaseOrderRequest{}, fmt.Errorf("closeplan: decrease order: %w", domain.ErrNotComputable)
	}
	fee := new(big.Int)
	if executionFee != nil {
		fee.Set(executionFee)
	}
	pos := in.Position
	return domain.DecreaseOrderRequest{
		IndexToken:            c.tokenAddress(pos.IndexToken),
		SizeDelta:             p.SizeDelta,
		CollateralToken:       c.tokenAddress(pos.CollateralToken),
		CollateralDelta:       p.CollateralDelta,
		IsLong:                pos.IsLong,
		TriggerPrice:          *trigger,
		TriggerAboveThreshold: trigger.Gt(pos.MarkPrice),
		ExecutionFee:          fee,
	}, nil
}

// DecreasePosition builds the router request for a market close. The
// acceptable price is the index price moved against the trader by
// slippageBps: longs sell at the bid, shorts buy back at the ask.
func (c *Calculator) DecreasePosition(in Input, p Plan, recipient common.Address, slippageBps int64) (domain.DecreasePositionRequest, error) {
	pos := in.Position
	ref := pos.IndexToken.Price(!pos.IsLong)
	if ref == nil || ref.Sign() <= 0 || p.SizeDelta.IsZero() {
		return domain.DecreasePositionRequest{}, fmt.Errorf("closeplan: decrease position: %w", domain.ErrNotComputable)
	}

	var calc fixed.Calc
	bps := calc.Sub(margin.BasisPointsDivisor, fixed.New(slippageBps))
	if !pos.IsLong {
		bps = calc.Add(margin.BasisPointsDivisor, fixed.New(slippageBps))
	}
	acceptable := calc.MulDiv(*ref, bps, margin.BasisPointsDivisor)
	if err := calc.Err(); err != nil {
		return domain.DecreasePositionRequest{}, fmt.Errorf("closeplan: decrease position: %w", err)
	}

	return domain.DecreasePositionRequest{
		CollateralToken: c.tokenAddress(pos.CollateralToken),
		IndexToken:      c.tokenAddress(pos.IndexToken),
		CollateralDelta: p.CollateralDelta,
		SizeDelta:       p.SizeDelta,
		IsLong:          pos.IsLong,
		Recipient:       recipient,
		AcceptablePrice: acceptable,
		ReceiveNative:   pos.CollateralToken.IsNative,
	}, nil
}

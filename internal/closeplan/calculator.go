// Package closeplan computes what closing all or part of a leveraged position
// would do: the PnL realized, fees paid, collateral released and the
// resulting leverage and liquidation price. It also validates the request
// against the close rules, detects conflicting resting orders and builds the
// contract requests for submission.
//
// Everything here is a pure function of its inputs. A Calculator holds only
// immutable configuration and is safe for concurrent use.
package closeplan

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
	"github.com/alanyoungcy/perpcloser/internal/pricing"
)

// Rules are the thresholds checked by Validate and the dust rule.
type Rules struct {
	// Dust is the remaining size below which a close becomes a full close.
	Dust fixed.Int
	// MinLeftover is the smallest position a partial close may leave.
	MinLeftover fixed.Int
	// Leverage band in basis points.
	MinLeverage fixed.Int
	MaxLeverage fixed.Int
}

// DefaultRules returns the production thresholds.
func DefaultRules() Rules {
	return Rules{
		Dust:        fixed.Expand(1, margin.USDDecimals),
		MinLeftover: fixed.Expand(10, margin.USDDecimals),
		MinLeverage: fixed.New(11_000),
		MaxLeverage: fixed.New(305_000),
	}
}

// Config configures a Calculator.
type Config struct {
	Margin margin.Params
	Rules  Rules
	// NativeToken is the wrapped-native token address orders refer to when
	// they trade the chain's native currency.
	NativeToken common.Address
	// StableToken is the USD-pegged pseudo token converted without a price.
	StableToken common.Address
}

// Calculator computes close plans.
type Calculator struct {
	params    margin.Params
	rules     Rules
	native    common.Address
	converter pricing.Converter
	checks    []rule
}

// NewCalculator returns a Calculator for cfg.
func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{
		params:    cfg.Margin,
		rules:     cfg.Rules,
		native:    cfg.NativeToken,
		converter: pricing.NewConverter(cfg.StableToken),
	}
	c.checks = c.defaultRules()
	return c
}

// Params returns the margin constants in use.
func (c *Calculator) Params() margin.Params { return c.params }

// Input is one set of trader inputs for a close.
type Input struct {
	Position  domain.Position
	OrderType domain.OrderType
	// Amount is the requested USD notional to close; nil when not entered.
	Amount *fixed.Int
	// TriggerPrice is only read in trigger mode; nil when not entered.
	TriggerPrice *fixed.Int
	KeepLeverage bool
	// PnLInLeverage counts unrealized PnL as collateral in leverage figures.
	PnLInLeverage bool
	// AcceptForfeit is the trader's acknowledgement that a market close
	// forfeits a pending profit.
	AcceptForfeit     bool
	OrderBookApproved bool
	// Now anchors the minimum-profit window. Compute uses the wall clock
	// when it is zero.
	Now time.Time
}

func (in Input) isTrigger() bool { return in.OrderType == domain.OrderTypeTrigger }

func (in Input) amount() *fixed.Int {
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return nil
	}
	return in.Amount
}

func (in Input) triggerPrice() *fixed.Int {
	if !in.isTrigger() || in.TriggerPrice == nil || in.TriggerPrice.Sign() <= 0 {
		return nil
	}
	return in.TriggerPrice
}

// referencePrice is the price the close is evaluated at: the mark for a
// market close, the trigger price for a trigger order.
func (in Input) referencePrice() *fixed.Int {
	if in.isTrigger() {
		return in.triggerPrice()
	}
	if in.Position.MarkPrice.Sign() <= 0 {
		return nil
	}
	return in.Position.MarkPrice.Ptr()
}

// Plan is the outcome of a close. Pointer fields are absent (nil) when they
// cannot be computed from the inputs or do not apply.
type Plan struct {
	OrderType domain.OrderType `json:"order_type"`
	// RequestedSize is the amount as entered.
	RequestedSize  *fixed.Int `json:"requested_size,omitempty"`
	ReferencePrice *fixed.Int `json:"reference_price,omitempty"`

	SizeDelta       fixed.Int `json:"size_delta"`
	IsFullClose     bool      `json:"is_full_close"`
	CollateralDelta fixed.Int `json:"collateral_delta"`
	ReceiveAmount   fixed.Int `json:"receive_amount"`
	// ConvertedReceiveAmount is ReceiveAmount in collateral-token units.
	ConvertedReceiveAmount *fixed.Int `json:"converted_receive_amount,omitempty"`
	// ConvertedCloseAmount is RequestedSize in collateral-token units.
	ConvertedCloseAmount *fixed.Int `json:"converted_close_amount,omitempty"`

	FundingFee  *fixed.Int `json:"funding_fee,omitempty"`
	PositionFee *fixed.Int `json:"position_fee,omitempty"`
	TotalFees   *fixed.Int `json:"total_fees,omitempty"`

	NextCollateral       *fixed.Int `json:"next_collateral,omitempty"`
	NextLeverage         *fixed.Int `json:"next_leverage,omitempty"`
	NextLiquidationPrice *fixed.Int `json:"next_liquidation_price,omitempty"`
	LiquidationPrice     *fixed.Int `json:"liquidation_price,omitempty"`
	CurrentLeverage      *fixed.Int `json:"current_leverage,omitempty"`

	// Delta is the realized PnL attributable to SizeDelta.
	Delta           fixed.Int `json:"delta"`
	HasProfit       bool      `json:"has_profit"`
	DeltaPercentage fixed.Int `json:"delta_percentage"`
	// PendingDelta is the PnL on the requested amount before the
	// minimum-profit rule, as shown to the trader.
	PendingDelta           fixed.Int `json:"pending_delta"`
	PendingDeltaPercentage fixed.Int `json:"pending_delta_percentage"`

	ProfitPrice *fixed.Int `json:"profit_price,omitempty"`
	// ForfeitsProfit is set when the close price is nominally profitable
	// but the profit is not realizable yet.
	ForfeitsProfit bool `json:"forfeits_profit"`
	// HasPendingProfit is set when the position at mark has only
	// unrealizable profit.
	HasPendingProfit   bool      `json:"has_pending_profit"`
	MinProfitExpiresAt time.Time `json:"min_profit_expires_at"`
}

// Compute builds the close plan for in. Without a reference price the plan
// only carries the position-level figures and the entered amount. It fails
// only on arithmetic overflow, which means the position data is corrupt.
func (c *Calculator) Compute(in Input) (Plan, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	pos := in.Position
	plan := Plan{
		OrderType:          in.OrderType,
		MinProfitExpiresAt: c.params.MinProfitExpiry(pos),
	}
	var err error

	if plan.FundingFee, err = c.params.FundingFee(pos.Size, pos.EntryFundingRate, pos.CumulativeFundingRate); err != nil {
		return Plan{}, c.wrap(err)
	}
	if plan.LiquidationPrice, err = c.params.LiquidationPrice(margin.LiquidationInput{
		IsLong:                pos.IsLong,
		Size:                  pos.Size,
		Collateral:            pos.Collateral,
		AveragePrice:          pos.AveragePrice,
		EntryFundingRate:      pos.EntryFundingRate,
		CumulativeFundingRate: pos.CumulativeFundingRate,
	}); err != nil {
		return Plan{}, c.wrap(err)
	}

	var atMark margin.Delta
	if pos.MarkPrice.Sign() > 0 {
		if atMark, err = c.params.PositionDelta(pos.MarkPrice, pos, nil, in.Now); err != nil {
			return Plan{}, c.wrap(err)
		}
		plan.HasPendingProfit = atMark.Delta.IsZero() && atMark.Pending.Sign() > 0
	}
	if plan.CurrentLeverage, err = c.params.Leverage(margin.LeverageInput{
		Size:                  pos.Size,
		Collateral:            pos.Collateral,
		EntryFundingRate:      pos.EntryFundingRate,
		CumulativeFundingRate: pos.CumulativeFundingRate,
		HasProfit:             atMark.HasProfit,
		Delta:                 atMark.Delta.Ptr(),
		IncludeDelta:          in.PnLInLeverage,
	}); err != nil {
		return Plan{}, c.wrap(err)
	}

	amount := in.amount()
	plan.RequestedSize = amount

	ref := in.referencePrice()
	plan.ReferencePrice = ref
	if ref == nil {
		return plan, nil
	}

	if amount != nil {
		plan.SizeDelta = *amount
		var calc fixed.Calc
		plan.IsFullClose = calc.Sub(pos.Size, *amount).Lt(c.rules.Dust)
		if err := calc.Err(); err != nil {
			return Plan{}, c.wrap(err)
		}
		if plan.IsFullClose {
			plan.SizeDelta = pos.Size
		}
		if plan.ConvertedCloseAmount, err = c.converter.USDToToken(amount, pos.CollateralToken, true); err != nil {
			return Plan{}, c.wrap(err)
		}
	}

	closeDelta := atMark
	if in.isTrigger() {
		if closeDelta, err = c.params.PositionDelta(*ref, pos, nil, in.Now); err != nil {
			return Plan{}, c.wrap(err)
		}
	}
	plan.HasProfit = closeDelta.HasProfit
	if plan.ProfitPrice, err = c.params.ProfitPrice(ref, pos); err != nil {
		return Plan{}, c.wrap(err)
	}
	plan.ForfeitsProfit = plan.ProfitPrice != nil && closeDelta.Delta.IsZero() && closeDelta.HasProfit

	shown, err := c.params.PositionDelta(*ref, pos, amount, in.Now)
	if err != nil {
		return Plan{}, c.wrap(err)
	}
	plan.PendingDelta = shown.Pending
	plan.PendingDeltaPercentage = shown.PendingPercentage

	if amount == nil {
		return plan, nil
	}
	if err := c.settle(&plan, in, closeDelta); err != nil {
		return Plan{}, c.wrap(err)
	}
	return plan, nil
}

// settle fills in the money fields of a plan with a known size and price.
func (c *Calculator) settle(plan *Plan, in Input, closeDelta margin.Delta) error {
	pos := in.Position
	var calc fixed.Calc

	fee, err := c.params.PositionFee(plan.SizeDelta)
	if err != nil {
		return err
	}
	plan.PositionFee = &fee

	receive := fixed.Zero()
	if plan.IsFullClose {
		receive = pos.Collateral
	}

	if !pos.Size.IsZero() {
		plan.Delta = calc.MulDiv(closeDelta.Delta, plan.SizeDelta, pos.Size)
	}
	if !pos.Collateral.IsZero() {
		plan.DeltaPercentage = calc.MulDiv(plan.Delta, margin.BasisPointsDivisor, pos.Collateral)
	}
	if closeDelta.HasProfit {
		receive = calc.Add(receive, plan.Delta)
	} else {
		receive = clampSub(&calc, receive, plan.Delta)
	}

	if in.KeepLeverage && !plan.IsFullClose && !pos.Size.IsZero() {
		plan.CollateralDelta = calc.MulDiv(plan.SizeDelta, pos.Collateral, pos.Size)
	}
	receive = calc.Add(receive, plan.CollateralDelta)

	if plan.FundingFee != nil {
		total := calc.Add(fee, *plan.FundingFee)
		plan.TotalFees = &total
		receive = clampSub(&calc, receive, total)
		if plan.CollateralDelta.Gt(total) {
			plan.CollateralDelta = calc.Sub(plan.CollateralDelta, total)
		}
	}
	plan.ReceiveAmount = receive
	if err := calc.Err(); err != nil {
		return err
	}

	if plan.ConvertedReceiveAmount, err = c.converter.USDToToken(&receive, pos.CollateralToken, false); err != nil {
		return err
	}

	if plan.IsFullClose {
		plan.NextCollateral = fixed.Zero().Ptr()
		return nil
	}
	next := calc.Sub(pos.Collateral, plan.CollateralDelta)
	if err := calc.Err(); err != nil {
		return err
	}
	plan.NextCollateral = &next

	if in.KeepLeverage {
		return nil
	}
	if plan.NextLeverage, err = c.params.Leverage(margin.LeverageInput{
		Size:                  pos.Size,
		SizeDelta:             plan.SizeDelta.Ptr(),
		Collateral:            pos.Collateral,
		EntryFundingRate:      pos.EntryFundingRate,
		CumulativeFundingRate: pos.CumulativeFundingRate,
		HasProfit:             closeDelta.HasProfit,
		Delta:                 closeDelta.Delta.Ptr(),
		IncludeDelta:          in.PnLInLeverage,
	}); err != nil {
		return err
	}
	plan.NextLiquidationPrice, err = c.params.LiquidationPrice(margin.LiquidationInput{
		IsLong:                pos.IsLong,
		Size:                  pos.Size,
		SizeDelta:             plan.SizeDelta.Ptr(),
		Collateral:            pos.Collateral,
		AveragePrice:          pos.AveragePrice,
		EntryFundingRate:      pos.EntryFundingRate,
		CumulativeFundingRate: pos.CumulativeFundingRate,
	})
	return err
}

func clampSub(c *fixed.Calc, a, b fixed.Int) fixed.Int {
	if a.Gt(b) {
		return c.Sub(a, b)
	}
	return fixed.Zero()
}

func (c *Calculator) wrap(err error) error {
	return fmt.Errorf("closeplan: compute: %w", err)
}

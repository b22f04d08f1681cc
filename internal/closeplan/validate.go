package closeplan

import (
	"fmt"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
)

// Code identifies a rejection reason.
type Code string

const (
	CodeEnterAmount      Code = "enter_amount"
	CodeEnterPrice       Code = "enter_price"
	CodePriceBelowLiq    Code = "price_below_liq"
	CodePriceAboveLiq    Code = "price_above_liq"
	CodeInvalidPrice     Code = "invalid_price"
	CodeLeftoverTooSmall Code = "leftover_too_small"
	CodeMaxCloseExceeded Code = "max_close_exceeded"
	CodeMinLeverage      Code = "min_leverage"
	CodeMaxLeverage      Code = "max_leverage"
	CodeForfeitProfit    Code = "forfeit_profit_not_checked"
)

// Rejection is why a close may not be submitted. Rejections are recoverable:
// the trader changes the inputs and the plan is recomputed.
type Rejection struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (r Rejection) String() string { return r.Message }

type rule struct {
	code  Code
	check func(in Input, p Plan) (string, bool)
}

// defaultRules lists the close rules in evaluation order. Later rules assume
// the earlier ones passed.
func (c *Calculator) defaultRules() []rule {
	return []rule{
		{CodeEnterAmount, func(in Input, _ Plan) (string, bool) {
			return "Enter an amount", in.amount() == nil
		}},
		{CodeEnterAmount, func(_ Input, p Plan) (string, bool) {
			return "Enter an amount", p.NextLeverage != nil && p.NextLeverage.IsZero()
		}},
		{CodeEnterPrice, func(in Input, _ Plan) (string, bool) {
			return "Enter Price", in.isTrigger() && in.triggerPrice() == nil
		}},
		{CodePriceBelowLiq, func(in Input, p Plan) (string, bool) {
			if !in.isTrigger() || !in.Position.IsLong || p.LiquidationPrice == nil {
				return "", false
			}
			return "Price below Liq. Price", in.triggerPrice().Lte(*p.LiquidationPrice)
		}},
		{CodePriceAboveLiq, func(in Input, p Plan) (string, bool) {
			if !in.isTrigger() || in.Position.IsLong || p.LiquidationPrice == nil {
				return "", false
			}
			return "Price above Liq. Price", in.triggerPrice().Gte(*p.LiquidationPrice)
		}},
		{CodeInvalidPrice, func(in Input, p Plan) (string, bool) {
			return "Invalid price, see warning", in.isTrigger() && p.ForfeitsProfit
		}},
		{CodeLeftoverTooSmall, func(in Input, p Plan) (string, bool) {
			if in.Position.Size.IsZero() {
				return "", false
			}
			// A remainder under the dust threshold is a full close.
			left, err := in.Position.Size.Sub(*in.amount())
			msg := fmt.Sprintf("Leftover position below %s USD", usdText(c.rules.MinLeftover))
			return msg, err == nil && left.Gte(c.rules.Dust) && left.Lt(c.rules.MinLeftover)
		}},
		{CodeMaxCloseExceeded, func(in Input, _ Plan) (string, bool) {
			return "Max close amount exceeded", in.Position.Size.Lt(*in.amount())
		}},
		{CodeMinLeverage, func(_ Input, p Plan) (string, bool) {
			msg := "Min leverage: " + leverageText(c.rules.MinLeverage)
			return msg, p.NextLeverage != nil && p.NextLeverage.Lt(c.rules.MinLeverage)
		}},
		{CodeMaxLeverage, func(_ Input, p Plan) (string, bool) {
			msg := "Max leverage: " + leverageText(c.rules.MaxLeverage)
			return msg, p.NextLeverage != nil && p.NextLeverage.Gt(c.rules.MaxLeverage)
		}},
		{CodeForfeitProfit, func(in Input, p Plan) (string, bool) {
			return "Forfeit profit not checked", p.HasPendingProfit && !in.isTrigger() && !in.AcceptForfeit
		}},
	}
}

// Validate returns the first rule the close breaks, or nil when it may be
// submitted.
func (c *Calculator) Validate(in Input, p Plan) *Rejection {
	for _, r := range c.checks {
		if msg, failed := r.check(in, p); failed {
			return &Rejection{Code: r.code, Message: msg}
		}
	}
	return nil
}

// leverageText renders basis points as "1.1x", dropping trailing zeros.
func leverageText(bps fixed.Int) string {
	return bps.Decimal(4).String() + "x"
}

func usdText(v fixed.Int) string {
	return v.Decimal(margin.USDDecimals).String()
}

package closeplan

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
)

const (
	prefixAbove = ">"
	prefixBelow = "<"
)

// Preview is a plan with everything a close dialog shows around it.
type Preview struct {
	Plan      Plan       `json:"plan"`
	Rejection *Rejection `json:"rejection,omitempty"`

	Title          string `json:"title"`
	PrimaryText    string `json:"primary_text"`
	PrimaryEnabled bool   `json:"primary_enabled"`
	// NeedsApproval is set for trigger closes until the order book plugin
	// is approved; the primary action then enables orders instead.
	NeedsApproval bool `json:"needs_approval"`

	MaxAmount     fixed.Int `json:"max_amount"`
	MaxAmountText string    `json:"max_amount_text"`

	DeltaText           string `json:"delta_text"`
	DeltaPercentageText string `json:"delta_percentage_text"`
	// TriggerPrefix is ">" or "<" depending on the trigger's side of the mark.
	TriggerPrefix string `json:"trigger_prefix,omitempty"`

	ExistingOrder *ExistingOrderWarning `json:"existing_order,omitempty"`
	ProfitWarning *ProfitWarning        `json:"profit_warning,omitempty"`
}

// ExistingOrderWarning describes a resting order the close may collide with.
type ExistingOrderWarning struct {
	Order       domain.ConditionalOrder `json:"order"`
	SizeInToken *fixed.Int              `json:"size_in_token,omitempty"`
	Message     string                  `json:"message"`
}

// ProfitWarning explains a profit the close forfeits under the
// minimum-profit rule.
type ProfitWarning struct {
	ProfitPrice fixed.Int `json:"profit_price"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Message     string    `json:"message"`
}

// Preview computes, validates and describes a close.
func (c *Calculator) Preview(in Input, orders []domain.ConditionalOrder) (Preview, error) {
	plan, err := c.Compute(in)
	if err != nil {
		return Preview{}, err
	}
	pos := in.Position
	pv := Preview{
		Plan:          plan,
		Rejection:     c.Validate(in, plan),
		Title:         fmt.Sprintf("Close %s %s", pos.Side(), pos.IndexToken.Symbol),
		NeedsApproval: in.isTrigger() && !in.OrderBookApproved,
		MaxAmount:     pos.Size,
		MaxAmountText: fixed.Format(pos.Size, margin.USDDecimals, 2, true),
	}
	pv.PrimaryEnabled = pv.Rejection == nil
	pv.PrimaryText = primaryText(in, plan, pv.Rejection, pv.NeedsApproval)

	pv.DeltaText, pv.DeltaPercentageText = "-", "-"
	if plan.ReferencePrice != nil {
		pv.DeltaText, pv.DeltaPercentageText = deltaText(plan.PendingDelta, plan.PendingDeltaPercentage, plan.HasProfit)
	}
	if trigger := in.triggerPrice(); trigger != nil {
		pv.TriggerPrefix = prefixBelow
		if trigger.Gt(pos.MarkPrice) {
			pv.TriggerPrefix = prefixAbove
		}
	}

	if o := c.ConflictingOrder(in, orders); o != nil {
		pv.ExistingOrder = existingOrderWarning(*o, pos.IndexToken.Symbol)
	}
	if plan.ForfeitsProfit {
		pv.ProfitWarning = profitWarning(in, plan, pv.DeltaText)
	}
	return pv, nil
}

func primaryText(in Input, p Plan, rej *Rejection, needsApproval bool) string {
	switch {
	case rej != nil:
		return rej.Message
	case in.isTrigger() && needsApproval:
		return "Enable Orders"
	case in.isTrigger():
		return "Create Order"
	case p.HasPendingProfit:
		return "Close without profit"
	default:
		return "Close"
	}
}

// deltaText renders "+$12.34" and "+1.23%". Zero carries no sign.
func deltaText(delta, pct fixed.Int, hasProfit bool) (string, string) {
	sign := ""
	if delta.Sign() > 0 {
		sign = "-"
		if hasProfit {
			sign = "+"
		}
	}
	return sign + "$" + fixed.Format(delta, margin.USDDecimals, 2, true),
		sign + fixed.Format(pct, 2, 2, false) + "%"
}

func existingOrderWarning(o domain.ConditionalOrder, symbol string) *ExistingOrderWarning {
	w := &ExistingOrderWarning{Order: o}
	sizeText := "-"
	if o.TriggerPrice.Sign() > 0 {
		if size, err := o.SizeDelta.MulDiv(margin.Precision, o.TriggerPrice); err == nil {
			w.SizeInToken = &size
			sizeText = fixed.Format(size, margin.USDDecimals, 4, true)
		}
	}
	prefix := prefixBelow
	if o.TriggerAboveThreshold {
		prefix = prefixAbove
	}
	w.Message = fmt.Sprintf("You have an active order to decrease %s %s %s ($%s) at %s %s",
		o.Side(), sizeText, symbol,
		fixed.Format(o.SizeDelta, margin.USDDecimals, 2, true),
		prefix, fixed.Format(o.TriggerPrice, margin.USDDecimals, 2, true))
	return w
}

func profitWarning(in Input, p Plan, delta string) *ProfitWarning {
	w := &ProfitWarning{
		ProfitPrice: *p.ProfitPrice,
		ExpiresAt:   p.MinProfitExpiresAt,
		Remaining:   timeRemaining(p.MinProfitExpiresAt, in.Now),
	}
	side := prefixBelow
	if in.Position.IsLong {
		side = prefixAbove
	}
	rule := fmt.Sprintf("Profit price: %s $%s. This rule only applies for the next %s, until %s.",
		side, fixed.Format(w.ProfitPrice, margin.USDDecimals, 2, true),
		w.Remaining, w.ExpiresAt.UTC().Format("02 Jan 2006, 3:04 PM"))
	if in.isTrigger() {
		w.Message = fmt.Sprintf("This order will forfeit a profit of %s. %s", delta, rule)
	} else {
		w.Message = fmt.Sprintf("Reducing the position at the current price will forfeit a pending profit of %s. %s", delta, rule)
	}
	return w
}

func timeRemaining(until, now time.Time) string {
	d := until.Sub(now)
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

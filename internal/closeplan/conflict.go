package closeplan

import "github.com/alanyoungcy/perpcloser/internal/domain"

// ConflictingOrder returns the first resting trigger order that would act on
// the same position as the requested close, or nil. A trigger close only
// conflicts with orders on the same side of the mark price (a stop-loss with
// stop-losses, a take-profit with take-profits).
//
// Orders refer to the native currency by the wrapped token address, so such
// an order matches any position whose index token is native.
func (c *Calculator) ConflictingOrder(in Input, orders []domain.ConditionalOrder) *domain.ConditionalOrder {
	trigger := in.triggerPrice()
	if in.isTrigger() && trigger == nil {
		return nil
	}
	pos := in.Position
	for i := range orders {
		o := &orders[i]
		if o.Type != domain.OrderTypeTrigger {
			continue
		}
		if in.isTrigger() && trigger.Gt(pos.MarkPrice) != o.TriggerAboveThreshold {
			continue
		}
		sameToken := o.IndexToken == pos.IndexToken.Address
		if o.IndexToken == c.native {
			sameToken = pos.IndexToken.IsNative
		}
		if sameToken && o.IsLong == pos.IsLong {
			return o
		}
	}
	return nil
}

package closeplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

func takeProfit() domain.ConditionalOrder {
	return domain.ConditionalOrder{
		ID:                    "order-1",
		Account:               trader,
		Type:                  domain.OrderTypeTrigger,
		IndexToken:            nativeAddr,
		CollateralToken:       usdcAddr,
		IsLong:                true,
		SizeDelta:             usd(1_000),
		TriggerPrice:          usd(2_000),
		TriggerAboveThreshold: true,
	}
}

func TestConflictRespectsThresholdSide(t *testing.T) {
	c := newCalculator()
	orders := []domain.ConditionalOrder{takeProfit()}

	assert.Nil(t, c.ConflictingOrder(trigger(longETH(), usd(1_000), usd(1_900)), orders))

	got := c.ConflictingOrder(trigger(longETH(), usd(1_000), usd(2_100)), orders)
	require.NotNil(t, got)
	assert.Equal(t, "order-1", got.ID)
}

func TestConflictMarketCloseMatchesAnySide(t *testing.T) {
	c := newCalculator()
	got := c.ConflictingOrder(market(longETH(), usd(1_000)), []domain.ConditionalOrder{takeProfit()})
	require.NotNil(t, got)
}

func TestConflictFilters(t *testing.T) {
	c := newCalculator()

	marketOrder := takeProfit()
	marketOrder.Type = domain.OrderTypeMarket
	short := takeProfit()
	short.IsLong = false
	otherToken := takeProfit()
	otherToken.IndexToken = usdcAddr

	orders := []domain.ConditionalOrder{marketOrder, short, otherToken}
	assert.Nil(t, c.ConflictingOrder(market(longETH(), usd(1_000)), orders))

	// No price entered yet.
	in := trigger(longETH(), usd(1_000), usd(0))
	assert.Nil(t, c.ConflictingOrder(in, []domain.ConditionalOrder{takeProfit()}))
}

func TestConflictMatchesNonNativeByAddress(t *testing.T) {
	c := newCalculator()
	pos := longETH()
	pos.IndexToken.IsNative = false
	pos.IndexToken.Address = usdcAddr

	o := takeProfit()
	assert.Nil(t, c.ConflictingOrder(market(pos, usd(1_000)), []domain.ConditionalOrder{o}))

	o.IndexToken = usdcAddr
	assert.NotNil(t, c.ConflictingOrder(market(pos, usd(1_000)), []domain.ConditionalOrder{o}))
}

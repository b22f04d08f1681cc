package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/crypto"
	"github.com/alanyoungcy/perpcloser/internal/domain"
)

type marketFixture struct {
	svc       *MarketStateService
	positions *memPositions
	tokens    *memTokens
	prices    *memPrices
	bus       *memBus
}

func newMarketFixture() marketFixture {
	f := marketFixture{
		positions: newMemPositions(),
		tokens:    &memTokens{},
		prices:    &memPrices{},
		bus:       &memBus{},
	}
	f.svc = NewMarketStateService(f.positions, f.tokens, &memOrders{}, f.prices, f.bus, discardLogger())
	return f
}

func TestApplyPositionDerivesKey(t *testing.T) {
	f := newMarketFixture()
	pos := testPosition()
	pos.Key = ""

	got, err := f.svc.ApplyPosition(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, crypto.PositionKey(traderAddr, usdcAddr, wethAddr, true), got.Key)
	assert.False(t, got.UpdatedAt.IsZero())

	stored, err := f.positions.GetByKey(context.Background(), traderAddr, got.Key)
	require.NoError(t, err)
	assert.True(t, stored.Size.Eq(usd(10_000)))

	tokens, err := f.tokens.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	// Only the collateral token carried a quote.
	q, err := f.prices.GetTokenPrice(context.Background(), usdcAddr)
	require.NoError(t, err)
	assert.True(t, q.MinPrice.Eq(usd(1)))
	_, err = f.prices.GetTokenPrice(context.Background(), wethAddr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyPositionNeedsAccount(t *testing.T) {
	f := newMarketFixture()
	pos := testPosition()
	pos.Account = common.Address{}
	_, err := f.svc.ApplyPosition(context.Background(), pos)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestApplyPriceValidatesAndPublishes(t *testing.T) {
	f := newMarketFixture()
	ctx := context.Background()

	err := f.svc.ApplyPrice(ctx, domain.TokenPrice{Token: wethAddr, MinPrice: usd(2_001), MaxPrice: usd(1_999)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	err = f.svc.ApplyPrice(ctx, domain.TokenPrice{Token: wethAddr, MaxPrice: usd(1_999)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, f.bus.channel(domain.ChannelPriceEvents))

	require.NoError(t, f.svc.ApplyPrice(ctx, domain.TokenPrice{Token: wethAddr, MinPrice: usd(1_999), MaxPrice: usd(2_001)}))
	assert.Len(t, f.bus.channel(domain.ChannelPriceEvents), 1)
}

func TestPositionOverlaysQuotes(t *testing.T) {
	f := newMarketFixture()
	ctx := context.Background()
	_, err := f.svc.ApplyPosition(ctx, testPosition())
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyPrice(ctx, domain.TokenPrice{Token: wethAddr, MinPrice: usd(1_800), MaxPrice: usd(1_802)}))

	pos, err := f.svc.Position(ctx, traderAddr, "0xkey")
	require.NoError(t, err)
	assert.True(t, pos.MarkPrice.Eq(usd(1_800)))
	require.NotNil(t, pos.IndexToken.MaxPrice)
	assert.True(t, pos.IndexToken.MaxPrice.Eq(usd(1_802)))

	_, err = f.svc.Position(ctx, traderAddr, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionsOverlayQuotes(t *testing.T) {
	f := newMarketFixture()
	ctx := context.Background()
	_, err := f.svc.ApplyPosition(ctx, testPosition())
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyPrice(ctx, domain.TokenPrice{Token: wethAddr, MinPrice: usd(1_800), MaxPrice: usd(1_802)}))

	list, err := f.svc.Positions(ctx, traderAddr)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].MarkPrice.Eq(usd(1_800)))
	require.NotNil(t, list[0].IndexToken.MinPrice)
	assert.True(t, list[0].IndexToken.MinPrice.Eq(usd(1_800)))
	require.NotNil(t, list[0].CollateralToken.MinPrice)
	assert.True(t, list[0].CollateralToken.MinPrice.Eq(usd(1)))

	single, err := f.svc.Position(ctx, traderAddr, "0xkey")
	require.NoError(t, err)
	assert.True(t, single.MarkPrice.Eq(list[0].MarkPrice))

	empty, err := f.svc.Positions(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestApplyPositionSkipsInvalidQuote(t *testing.T) {
	f := newMarketFixture()
	ctx := context.Background()
	pos := testPosition()
	pos.IndexToken.MinPrice = usd(0).Ptr()
	pos.IndexToken.MaxPrice = usd(2_001).Ptr()

	_, err := f.svc.ApplyPosition(ctx, pos)
	require.NoError(t, err)

	_, err = f.positions.GetByKey(ctx, traderAddr, "0xkey")
	require.NoError(t, err, "position is stored despite the bad quote")
	_, err = f.prices.GetTokenPrice(ctx, wethAddr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	q, err := f.prices.GetTokenPrice(ctx, usdcAddr)
	require.NoError(t, err)
	assert.True(t, q.MinPrice.Eq(usd(1)))
}

func TestApplyOrders(t *testing.T) {
	f := newMarketFixture()
	ctx := context.Background()

	err := f.svc.ApplyOrders(ctx, domain.OrderBookSnapshot{
		Account: traderAddr,
		Orders: []domain.ConditionalOrder{
			{ID: "a", Type: domain.OrderTypeTrigger, IndexToken: wethAddr, IsLong: true},
			{ID: "b", Account: usdcAddr, Type: domain.OrderTypeTrigger},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, f.svc.ApplyOrders(ctx, domain.OrderBookSnapshot{
		Account: traderAddr,
		Orders:  []domain.ConditionalOrder{{ID: "a", Type: domain.OrderTypeTrigger, IndexToken: wethAddr, IsLong: true}},
	}))
	orders, err := f.svc.Orders(ctx, traderAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, traderAddr, orders[0].Account)
}

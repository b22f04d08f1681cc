package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/closeplan"
	"github.com/alanyoungcy/perpcloser/internal/contract"
	"github.com/alanyoungcy/perpcloser/internal/crypto"
	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
)

var (
	wethAddr      = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdcAddr      = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	routerAddr    = common.HexToAddress("0xaBBc5F99639c9B6bCb58544ddf04EFA6802F4064")
	orderBookAddr = common.HexToAddress("0x09f77E8A13De9a35a7231028187e9fD5DB8a2ACB")
	traderAddr    = common.HexToAddress("0x1111111111111111111111111111111111111111")

	testNow      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	executionFee = big.NewInt(3_000_000_000_000_000)
)

func usd(n int64) fixed.Int { return fixed.Expand(n, margin.USDDecimals) }

func testPosition() domain.Position {
	return domain.Position{
		Key:     "0xkey",
		Account: traderAddr,
		CollateralToken: domain.Token{
			Address: usdcAddr, Symbol: "USDC", Decimals: 6,
			MinPrice: usd(1).Ptr(), MaxPrice: usd(1).Ptr(),
		},
		IndexToken: domain.Token{
			Address: wethAddr, Symbol: "ETH", Decimals: 18, IsNative: true,
		},
		IsLong:            true,
		Size:              usd(10_000),
		Collateral:        usd(2_600),
		AveragePrice:      usd(2_000),
		MarkPrice:         usd(2_000),
		LastIncreasedTime: testNow.Add(-48 * time.Hour),
	}
}

type closeFixture struct {
	svc    *CloseService
	locks  *memLocks
	bus    *memBus
	audit  *mockAudit
	orders *memOrders
	sealer *crypto.Sealer
}

func newCloseFixture(t *testing.T, session SessionDefaults) closeFixture {
	t.Helper()
	prices := &memPrices{}
	require.NoError(t, prices.SetTokenPrice(context.Background(), domain.TokenPrice{
		Token: wethAddr, MinPrice: usd(2_199), MaxPrice: usd(2_201), Timestamp: testNow,
	}))
	enc, err := contract.NewEncoder(routerAddr, orderBookAddr)
	require.NoError(t, err)

	f := closeFixture{
		locks:  &memLocks{},
		bus:    &memBus{},
		audit:  &mockAudit{},
		orders: &memOrders{},
		sealer: crypto.NewSealer("secret"),
	}
	calc := closeplan.NewCalculator(closeplan.Config{
		Margin:      margin.DefaultParams(),
		Rules:       closeplan.DefaultRules(),
		NativeToken: wethAddr,
	})
	f.svc = NewCloseService(
		newMemPositions(testPosition()), f.orders, prices, f.locks, f.bus, f.audit,
		calc, enc, f.sealer,
		CloseServiceConfig{ExecutionFee: executionFee, LockTTL: time.Minute, Session: session},
		discardLogger(),
	).WithClock(func() time.Time { return testNow })
	return f
}

func defaultSession() SessionDefaults {
	return SessionDefaults{SlippageBps: 30, KeepLeverage: true, OrdersEnabled: true}
}

func amount(n int64) *fixed.Int { return usd(n).Ptr() }

func TestPreviewUsesCachedPrices(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	pv, err := f.svc.Preview(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", Amount: amount(5_000),
	})
	require.NoError(t, err)
	require.NotNil(t, pv.Plan.ReferencePrice)
	assert.True(t, pv.Plan.ReferencePrice.Eq(usd(2_199)))
	assert.Equal(t, domain.OrderTypeMarket, pv.Plan.OrderType)
	assert.Nil(t, pv.Rejection)
	assert.Equal(t, int64(30), pv.SlippageBps)
	assert.Nil(t, pv.ExecutionFee)
	// Keep-leverage default releases collateral.
	assert.True(t, pv.Plan.CollateralDelta.Eq(usd(1_300)))
}

func TestPreviewUnknownPosition(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	_, err := f.svc.Preview(context.Background(), CloseRequest{Account: traderAddr, PositionKey: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPreviewRejectsUnknownOrderType(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	_, err := f.svc.Preview(context.Background(), CloseRequest{Account: traderAddr, PositionKey: "0xkey", OrderType: "limit"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPreviewOrdersDisabledForcesMarket(t *testing.T) {
	session := defaultSession()
	session.OrdersEnabled = false
	f := newCloseFixture(t, session)

	pv, err := f.svc.Preview(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", OrderType: domain.OrderTypeTrigger,
		Amount: amount(5_000), TriggerPrice: amount(2_500),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeMarket, pv.Plan.OrderType)
	assert.False(t, pv.OrdersEnabled)
	assert.Nil(t, pv.ExecutionFee)
}

func TestPreviewTriggerShowsExecutionFee(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	pv, err := f.svc.Preview(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", OrderType: domain.OrderTypeTrigger,
		Amount: amount(5_000), TriggerPrice: amount(2_500),
	})
	require.NoError(t, err)
	require.NotNil(t, pv.ExecutionFee)
	assert.Equal(t, 0, pv.ExecutionFee.ToInt().Cmp(executionFee))
	assert.Equal(t, "0.0030 ETH", pv.ExecutionFeeText)
}

func TestSubmitMarketClose(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	f.audit.On("Log", mock.Anything, "close_submitted", mock.Anything).Return(nil).Once()

	sub, err := f.svc.Submit(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", Amount: amount(5_000),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, contract.MethodDecreasePosition, sub.Tx.Method)
	assert.Equal(t, routerAddr, sub.Tx.To)
	require.NotNil(t, sub.DecreasePosition)
	assert.Nil(t, sub.DecreaseOrder)

	want, err := usd(2_199).MulDiv(fixed.New(9_970), fixed.New(10_000))
	require.NoError(t, err)
	assert.True(t, sub.DecreasePosition.AcceptablePrice.Eq(want))
	assert.Equal(t, wethAddr, sub.DecreasePosition.IndexToken)

	entries := f.bus.stream(domain.StreamCloseRequests)
	require.Len(t, entries, 1)
	payload, err := f.sealer.Open(entries[0])
	require.NoError(t, err)
	var got domain.CloseSubmission
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, sub.Tx.Data, got.Tx.Data)

	assert.Len(t, f.bus.channel(domain.ChannelCloseEvents), 1)
	f.audit.AssertExpectations(t)

	// The lock is released afterwards.
	unlock, err := f.locks.Acquire(context.Background(), "close:"+traderAddr.Hex(), time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestSubmitRejected(t *testing.T) {
	f := newCloseFixture(t, defaultSession())

	_, err := f.svc.Submit(context.Background(), CloseRequest{Account: traderAddr, PositionKey: "0xkey"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRejected))
	rej, ok := IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, closeplan.CodeEnterAmount, rej.Code)

	assert.Empty(t, f.bus.stream(domain.StreamCloseRequests))
	f.audit.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitWhileInFlight(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	unlock, err := f.locks.Acquire(context.Background(), "close:"+traderAddr.Hex(), time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.Submit(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", Amount: amount(5_000),
	})
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestSubmitTriggerNeedsApproval(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	req := CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", OrderType: domain.OrderTypeTrigger,
		Amount: amount(5_000), TriggerPrice: amount(2_500),
	}
	_, err := f.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	f.audit.On("Log", mock.Anything, "close_submitted", mock.Anything).Return(nil).Once()
	req.OrderBookApproved = true
	sub, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, contract.MethodCreateDecreaseOrder, sub.Tx.Method)
	assert.Equal(t, orderBookAddr, sub.Tx.To)
	assert.Equal(t, 0, sub.Tx.Value.ToInt().Cmp(executionFee))
	require.NotNil(t, sub.DecreaseOrder)
	assert.True(t, sub.DecreaseOrder.TriggerAboveThreshold)
	f.audit.AssertExpectations(t)
}

func TestSubmitAuditFailureIsNotFatal(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	f.audit.On("Log", mock.Anything, "close_submitted", mock.Anything).Return(errors.New("db down")).Once()

	_, err := f.svc.Submit(context.Background(), CloseRequest{
		Account: traderAddr, PositionKey: "0xkey", Amount: amount(5_000),
	})
	require.NoError(t, err)
	assert.Len(t, f.bus.stream(domain.StreamCloseRequests), 1)
}

func TestEnableOrders(t *testing.T) {
	f := newCloseFixture(t, defaultSession())
	f.audit.On("Log", mock.Anything, "orders_enable_requested", mock.Anything).Return(nil).Once()

	tx, err := f.svc.EnableOrders(context.Background(), traderAddr)
	require.NoError(t, err)
	assert.Equal(t, contract.MethodApprovePlugin, tx.Method)
	assert.Equal(t, routerAddr, tx.To)
	f.audit.AssertExpectations(t)
}

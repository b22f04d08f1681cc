package closeplan

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
)

var (
	nativeAddr = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdcAddr   = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	stableAddr = common.HexToAddress("0x45096e7aA921f27590f8F19e457794EB09678141")
	trader     = common.HexToAddress("0x1111111111111111111111111111111111111111")

	now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func usd(n int64) fixed.Int { return fixed.Expand(n, margin.USDDecimals) }

func usdStr(t *testing.T, s string) fixed.Int {
	t.Helper()
	v, err := fixed.Parse(s, margin.USDDecimals)
	require.NoError(t, err)
	return v
}

func newCalculator() *Calculator {
	return NewCalculator(Config{
		Margin:      margin.DefaultParams(),
		Rules:       DefaultRules(),
		NativeToken: nativeAddr,
		StableToken: stableAddr,
	})
}

// longETH is 10k long ETH on 2.6k USDC collateral at 2000; its liquidation
// price is 1500.
func longETH() domain.Position {
	return domain.Position{
		Key:     "pos-1",
		Account: trader,
		CollateralToken: domain.Token{
			Address:  usdcAddr,
			Symbol:   "USDC",
			Decimals: 6,
			MinPrice: usd(1).Ptr(),
			MaxPrice: usd(1).Ptr(),
		},
		IndexToken: domain.Token{
			Address:  common.Address{},
			Symbol:   "ETH",
			Decimals: 18,
			IsNative: true,
			MinPrice: usd(1_999).Ptr(),
			MaxPrice: usd(2_001).Ptr(),
		},
		IsLong:            true,
		Size:              usd(10_000),
		Collateral:        usd(2_600),
		AveragePrice:      usd(2_000),
		MarkPrice:         usd(2_000),
		LastIncreasedTime: now.Add(-48 * time.Hour),
	}
}

func withFunding(pos domain.Position, entry, cumulative int64) domain.Position {
	pos.EntryFundingRate = fixed.New(entry).Ptr()
	pos.CumulativeFundingRate = fixed.New(cumulative).Ptr()
	return pos
}

func market(pos domain.Position, amount fixed.Int) Input {
	return Input{Position: pos, OrderType: domain.OrderTypeMarket, Amount: &amount, Now: now}
}

func trigger(pos domain.Position, amount, price fixed.Int) Input {
	return Input{Position: pos, OrderType: domain.OrderTypeTrigger, Amount: &amount, TriggerPrice: &price, Now: now}
}

func TestDustForcesFullClose(t *testing.T) {
	pos := withFunding(longETH(), 0, 0)
	pos.Size = usd(1_000)
	pos.Collateral = usd(200)

	plan, err := newCalculator().Compute(market(pos, usdStr(t, "999.5")))
	require.NoError(t, err)
	assert.True(t, plan.IsFullClose)
	assert.True(t, plan.SizeDelta.Eq(usd(1_000)))
	require.NotNil(t, plan.NextCollateral)
	assert.True(t, plan.NextCollateral.IsZero())
	assert.Nil(t, plan.NextLeverage)
	assert.Nil(t, plan.NextLiquidationPrice)
	require.NotNil(t, plan.PositionFee)
	assert.True(t, plan.PositionFee.Eq(usd(1)))
	assert.True(t, plan.ReceiveAmount.Eq(usd(199)))
}

func TestFullCloseWithProfit(t *testing.T) {
	pos := withFunding(longETH(), 100, 350)
	pos.MarkPrice = usd(2_200)

	plan, err := newCalculator().Compute(market(pos, usd(10_000)))
	require.NoError(t, err)
	assert.True(t, plan.IsFullClose)
	assert.True(t, plan.HasProfit)
	assert.True(t, plan.Delta.Eq(usd(1_000)))
	require.NotNil(t, plan.TotalFees)
	assert.True(t, plan.TotalFees.Eq(usdStr(t, "12.5")))
	assert.True(t, plan.ReceiveAmount.Eq(usdStr(t, "3587.5")))
	require.NotNil(t, plan.ConvertedReceiveAmount)
	assert.Equal(t, "3587500000", plan.ConvertedReceiveAmount.String())
	assert.True(t, plan.NextCollateral.IsZero())
	assert.Nil(t, plan.NextLeverage)
}

func TestLossNeverMakesPayoutNegative(t *testing.T) {
	pos := withFunding(longETH(), 0, 1_000)
	pos.MarkPrice = usd(1_400)

	plan, err := newCalculator().Compute(market(pos, usd(10_000)))
	require.NoError(t, err)
	assert.False(t, plan.HasProfit)
	assert.True(t, plan.Delta.Eq(usd(3_000)))
	assert.True(t, plan.ReceiveAmount.IsZero())
	assert.Nil(t, plan.ConvertedReceiveAmount)
	assert.True(t, plan.CollateralDelta.Sign() >= 0)
}

func TestKeepLeverageReleasesCollateralProportionally(t *testing.T) {
	in := market(longETH(), usd(5_000))
	in.KeepLeverage = true

	plan, err := newCalculator().Compute(in)
	require.NoError(t, err)
	assert.False(t, plan.IsFullClose)
	assert.Nil(t, plan.TotalFees)
	assert.True(t, plan.CollateralDelta.Eq(usd(1_300)))
	require.NotNil(t, plan.NextCollateral)
	assert.True(t, plan.NextCollateral.Eq(usd(1_300)))
	assert.True(t, plan.ReceiveAmount.Eq(usd(1_300)))
	assert.Nil(t, plan.NextLeverage)
	assert.Nil(t, plan.NextLiquidationPrice)

	// collateralDelta / (collateralDelta + nextCollateral) == sizeDelta / size
	total, err := plan.CollateralDelta.Add(*plan.NextCollateral)
	require.NoError(t, err)
	lhs, err := plan.CollateralDelta.MulDiv(in.Position.Size, total)
	require.NoError(t, err)
	assert.True(t, lhs.Eq(plan.SizeDelta))
}

func TestKeepLeveragePaysFeesFromReleasedCollateral(t *testing.T) {
	in := market(withFunding(longETH(), 100, 350), usd(5_000))
	in.KeepLeverage = true

	plan, err := newCalculator().Compute(in)
	require.NoError(t, err)
	require.NotNil(t, plan.TotalFees)
	assert.True(t, plan.TotalFees.Eq(usdStr(t, "7.5")))
	assert.True(t, plan.ReceiveAmount.Eq(usdStr(t, "1292.5")))
	assert.True(t, plan.CollateralDelta.Eq(usdStr(t, "1292.5")))
	assert.True(t, plan.NextCollateral.Eq(usdStr(t, "1307.5")))
}

func TestPartialCloseProjectsLeverage(t *testing.T) {
	plan, err := newCalculator().Compute(market(longETH(), usd(5_000)))
	require.NoError(t, err)
	assert.True(t, plan.CollateralDelta.IsZero())
	assert.True(t, plan.NextCollateral.Eq(usd(2_600)))
	require.NotNil(t, plan.NextLeverage)
	assert.Equal(t, "19250", plan.NextLeverage.String())
	require.NotNil(t, plan.NextLiquidationPrice)
	assert.True(t, plan.NextLiquidationPrice.Eq(usd(982)))
	require.NotNil(t, plan.LiquidationPrice)
	assert.True(t, plan.LiquidationPrice.Eq(usd(1_500)))
	require.NotNil(t, plan.CurrentLeverage)
	assert.Equal(t, "38461", plan.CurrentLeverage.String())
	require.NotNil(t, plan.ConvertedCloseAmount)
	assert.Equal(t, "5000000000", plan.ConvertedCloseAmount.String())
}

func TestMissingTriggerPriceShortCircuits(t *testing.T) {
	amount := usd(5_000)
	in := Input{Position: longETH(), OrderType: domain.OrderTypeTrigger, Amount: &amount, Now: now}

	c := newCalculator()
	plan, err := c.Compute(in)
	require.NoError(t, err)
	assert.Nil(t, plan.ReferencePrice)
	require.NotNil(t, plan.RequestedSize)
	assert.True(t, plan.RequestedSize.Eq(amount))
	assert.True(t, plan.SizeDelta.IsZero())
	assert.False(t, plan.IsFullClose)
	assert.Nil(t, plan.ConvertedCloseAmount)
	assert.True(t, plan.ReceiveAmount.IsZero())
	assert.Nil(t, plan.PositionFee)
	assert.Nil(t, plan.NextLeverage)
	require.NotNil(t, plan.LiquidationPrice)

	rej := c.Validate(in, plan)
	require.NotNil(t, rej)
	assert.Equal(t, CodeEnterPrice, rej.Code)
}

func TestZeroNowUsesWallClock(t *testing.T) {
	pos := withFunding(longETH(), 0, 0)
	pos.MarkPrice = usd(2_010)
	pos.LastIncreasedTime = time.Now().Add(-48 * time.Hour)

	in := market(pos, usd(10_000))
	in.Now = time.Time{}
	plan, err := newCalculator().Compute(in)
	require.NoError(t, err)
	assert.True(t, plan.HasProfit)
	assert.True(t, plan.Delta.Eq(usd(50)), "profit is kept once the window has passed")
	assert.True(t, plan.MinProfitExpiresAt.Before(time.Now()))

	in.Now = pos.LastIncreasedTime.Add(time.Hour)
	young, err := newCalculator().Compute(in)
	require.NoError(t, err)
	assert.True(t, young.Delta.IsZero())
}

func TestComputeIsRepeatable(t *testing.T) {
	c := newCalculator()
	in := market(withFunding(longETH(), 100, 350), usd(4_000))
	first, err := c.Compute(in)
	require.NoError(t, err)
	second, err := c.Compute(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

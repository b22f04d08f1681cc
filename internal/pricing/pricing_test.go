package pricing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

var (
	stableAddr = common.HexToAddress("0x45096e7aA921f27590f8F19e457794EB09678141")
	wethAddr   = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
)

func weth() domain.Token {
	return domain.Token{
		Address:  wethAddr,
		Symbol:   "ETH",
		Decimals: 18,
		IsNative: true,
		MinPrice: fixed.Expand(1999, 30).Ptr(),
		MaxPrice: fixed.Expand(2001, 30).Ptr(),
	}
}

func TestUSDToTokenPicksSpreadSide(t *testing.T) {
	c := NewConverter(stableAddr)
	usd := fixed.Expand(2001, 30)

	ask, err := c.USDToToken(&usd, weth(), true)
	require.NoError(t, err)
	require.NotNil(t, ask)
	assert.True(t, ask.Eq(fixed.Expand(1, 18)))

	bid, err := c.USDToToken(&usd, weth(), false)
	require.NoError(t, err)
	require.NotNil(t, bid)
	assert.True(t, bid.Gt(*ask))
}

func TestUSDToTokenNotComputable(t *testing.T) {
	c := NewConverter(stableAddr)

	out, err := c.USDToToken(nil, weth(), true)
	require.NoError(t, err)
	assert.Nil(t, out)

	zero := fixed.Zero()
	out, err = c.USDToToken(&zero, weth(), true)
	require.NoError(t, err)
	assert.Nil(t, out)

	unpriced := weth()
	unpriced.MaxPrice = nil
	usd := fixed.Expand(10, 30)
	out, err = c.USDToToken(&usd, unpriced, true)
	require.NoError(t, err)
	assert.Nil(t, out)

	// The bid is still there.
	out, err = c.USDToToken(&usd, unpriced, false)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestStableBypassesPrice(t *testing.T) {
	c := NewConverter(stableAddr)
	usd := fixed.Expand(25, 30)
	out, err := c.USDToToken(&usd, domain.Token{Address: stableAddr, Decimals: 6}, false)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Eq(fixed.Expand(25, 18)))

	back, err := c.TokenToUSD(out, domain.Token{Address: stableAddr}, false)
	require.NoError(t, err)
	assert.True(t, back.Eq(usd))
}

func TestConversionRoundTrip(t *testing.T) {
	c := NewConverter(stableAddr)
	usdc := domain.Token{
		Address:  common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"),
		Symbol:   "USDC",
		Decimals: 6,
		MinPrice: fixed.Expand(99_987, 25).Ptr(),
		MaxPrice: fixed.Expand(1, 30).Ptr(),
	}

	amounts := []int64{1, 7, 1_000_003, 123_456_789_012}
	for _, tok := range []domain.Token{weth(), usdc} {
		for _, useAsk := range []bool{true, false} {
			for _, a := range amounts {
				x := fixed.New(a)
				usd, err := c.TokenToUSD(&x, tok, useAsk)
				require.NoError(t, err)
				require.NotNil(t, usd)
				back, err := c.USDToToken(usd, tok, useAsk)
				require.NoError(t, err)
				require.NotNil(t, back)

				diff, err := x.Sub(*back)
				require.NoError(t, err)
				assert.True(t, diff.Sign() >= 0 && diff.Lte(fixed.New(1)),
					"%s ask=%v x=%d back=%s", tok.Symbol, useAsk, a, back)
			}
		}
	}
}

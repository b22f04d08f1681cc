package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionKeyIsStable(t *testing.T) {
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc := common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	weth := common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")

	long := PositionKey(account, usdc, weth, true)
	assert.Len(t, long, 66)
	assert.Equal(t, long, PositionKey(account, usdc, weth, true))
	assert.NotEqual(t, long, PositionKey(account, usdc, weth, false))
	assert.NotEqual(t, long, PositionKey(account, weth, weth, true))
}

func TestSealOpenRoundTrip(t *testing.T) {
	s := NewSealer("shared-secret")
	env, err := s.SealAt([]byte(`{"id":"abc"}`), 1_700_000_000)
	require.NoError(t, err)

	payload, err := s.Open(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc"}`, string(payload))

	_, err = NewSealer("other-secret").Open(env)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSealerStringRedacts(t *testing.T) {
	for _, secret := range []string{"shared-secret", "abc", ""} {
		assert.Equal(t, "Sealer{secret=****}", NewSealer(secret).String())
	}
}

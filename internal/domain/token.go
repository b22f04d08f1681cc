package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// Token describes an ERC-20 (or the chain's native currency) as seen by the
// market-state feed. Prices are USD at the 1e30 scale.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
	IsNative bool           `json:"is_native"`
	MinPrice *fixed.Int     `json:"min_price,omitempty"` // bid; nil until priced
	MaxPrice *fixed.Int     `json:"max_price,omitempty"` // ask; nil until priced
}

// Price returns the ask when useAsk is set, the bid otherwise. The result is
// nil when the feed has not priced that side yet.
func (t Token) Price(useAsk bool) *fixed.Int {
	if useAsk {
		return t.MaxPrice
	}
	return t.MinPrice
}

// TokenPrice is one bid/ask observation for a token.
type TokenPrice struct {
	Token     common.Address `json:"token"`
	MinPrice  fixed.Int      `json:"min_price"`
	MaxPrice  fixed.Int      `json:"max_price"`
	Timestamp time.Time      `json:"timestamp"`
}

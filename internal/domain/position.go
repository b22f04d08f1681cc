package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// Position is a snapshot of a trader's open leveraged position as supplied
// by the market-state feed. The close calculator never mutates it.
//
// Size, Collateral, AveragePrice and MarkPrice are USD at the 1e30 scale.
// The funding accumulators use the funding-rate scale and are nil when the
// feed has not delivered them.
type Position struct {
	Key                   string         `json:"key"`
	Account               common.Address `json:"account"`
	CollateralToken       Token          `json:"collateral_token"`
	IndexToken            Token          `json:"index_token"`
	IsLong                bool           `json:"is_long"`
	Size                  fixed.Int      `json:"size"`
	Collateral            fixed.Int      `json:"collateral"`
	AveragePrice          fixed.Int      `json:"average_price"`
	MarkPrice             fixed.Int      `json:"mark_price"`
	EntryFundingRate      *fixed.Int     `json:"entry_funding_rate,omitempty"`
	CumulativeFundingRate *fixed.Int     `json:"cumulative_funding_rate,omitempty"`
	LastIncreasedTime     time.Time      `json:"last_increased_time"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Side returns "Long" or "Short".
func (p Position) Side() string {
	if p.IsLong {
		return "Long"
	}
	return "Short"
}

// ApplyIndexPrices refreshes the index token quotes and re-derives the mark
// price the way the vault does: longs are marked at the bid, shorts at the
// ask. A side that is still unpriced leaves the snapshot's mark untouched.
func (p Position) ApplyIndexPrices(minPrice, maxPrice fixed.Int) Position {
	p.IndexToken.MinPrice = minPrice.Ptr()
	p.IndexToken.MaxPrice = maxPrice.Ptr()
	mark := maxPrice
	if p.IsLong {
		mark = minPrice
	}
	if mark.Sign() > 0 {
		p.MarkPrice = mark
	}
	return p
}

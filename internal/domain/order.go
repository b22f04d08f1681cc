package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// OrderType selects how a close is executed.
type OrderType string

const (
	// OrderTypeMarket decreases the position immediately at the mark price.
	OrderTypeMarket OrderType = "market"
	// OrderTypeTrigger places a conditional decrease that executes once the
	// index price crosses the trigger price.
	OrderTypeTrigger OrderType = "trigger"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeTrigger
}

// ConditionalOrder is one of the trader's resting orders, read from the order
// book collaborator.
type ConditionalOrder struct {
	ID                    string         `json:"id"`
	Account               common.Address `json:"account"`
	Index                 int64          `json:"index"`
	Type                  OrderType      `json:"type"`
	IndexToken            common.Address `json:"index_token"`
	CollateralToken       common.Address `json:"collateral_token"`
	IsLong                bool           `json:"is_long"`
	SizeDelta             fixed.Int      `json:"size_delta"`
	CollateralDelta       fixed.Int      `json:"collateral_delta"`
	TriggerPrice          fixed.Int      `json:"trigger_price"`
	TriggerAboveThreshold bool           `json:"trigger_above_threshold"`
	CreatedAt             time.Time      `json:"created_at"`
}

// Side returns "Long" or "Short".
func (o ConditionalOrder) Side() string {
	if o.IsLong {
		return "Long"
	}
	return "Short"
}

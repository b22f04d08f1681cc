package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bus channels and streams.
const (
	// StreamCloseRequests carries unsigned close transactions to the external
	// signer. Entries are CloseSubmission JSON.
	StreamCloseRequests = "close_requests"
	// ChannelCloseEvents announces accepted submissions to websocket clients.
	ChannelCloseEvents = "close_events"
	// ChannelPriceEvents announces fresh token quotes.
	ChannelPriceEvents = "price_events"

	// Market-state feed inputs.
	ChannelPositions = "market:positions"
	ChannelPrices    = "market:prices"
	ChannelOrders    = "market:orders"
)

// UnsignedTx is a contract call ready for an external signer.
type UnsignedTx struct {
	To     common.Address `json:"to"`
	Data   hexutil.Bytes  `json:"data"`
	Value  *hexutil.Big   `json:"value"`
	Method string         `json:"method"`
}

// CloseSubmission is what the service hands off once a close passes
// validation.
type CloseSubmission struct {
	ID          string         `json:"id"`
	Account     common.Address `json:"account"`
	PositionKey string         `json:"position_key"`
	OrderType   OrderType      `json:"order_type"`
	Tx          UnsignedTx     `json:"tx"`
	// Exactly one of the two requests is set, matching OrderType.
	DecreaseOrder    *DecreaseOrderRequest    `json:"decrease_order,omitempty"`
	DecreasePosition *DecreasePositionRequest `json:"decrease_position,omitempty"`
	SubmittedAt      time.Time                `json:"submitted_at"`
}

// OrderBookSnapshot replaces everything known about one trader's resting
// orders.
type OrderBookSnapshot struct {
	Account common.Address     `json:"account"`
	Orders  []ConditionalOrder `json:"orders"`
}

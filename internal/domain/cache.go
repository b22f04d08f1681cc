package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCache holds the latest bid/ask per token.
type PriceCache interface {
	SetTokenPrice(ctx context.Context, price TokenPrice) error
	GetTokenPrice(ctx context.Context, token common.Address) (TokenPrice, error)
	// GetTokenPrices returns whatever is cached; tokens without a fresh quote
	// are simply missing from the map.
	GetTokenPrices(ctx context.Context, tokens []common.Address) (map[common.Address]TokenPrice, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter counts requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

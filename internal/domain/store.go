package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PositionStore persists position snapshots delivered by the market-state feed.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetByKey(ctx context.Context, account common.Address, key string) (Position, error)
	ListByAccount(ctx context.Context, account common.Address) ([]Position, error)
	Delete(ctx context.Context, account common.Address, key string) error
}

// TokenStore persists token metadata (symbol, decimals, native flag).
type TokenStore interface {
	Upsert(ctx context.Context, token Token) error
	Get(ctx context.Context, address common.Address) (Token, error)
	List(ctx context.Context) ([]Token, error)
}

// OrderStore persists the trader's resting conditional orders as last seen on
// the order book.
type OrderStore interface {
	ReplaceForAccount(ctx context.Context, account common.Address, orders []ConditionalOrder) error
	ListByAccount(ctx context.Context, account common.Address) ([]ConditionalOrder, error)
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// ReplaceForAccount swaps the account's stored orders for orders in one
// transaction, so readers never see a half-applied order book listing.
func (s *OrderStore) ReplaceForAccount(ctx context.Context, account common.Address, orders []domain.ConditionalOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace orders: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM conditional_orders WHERE account = $1`, account.Hex()); err != nil {
		return fmt.Errorf("postgres: clear orders for %s: %w", account.Hex(), err)
	}

	if len(orders) > 0 {
		batch := &pgx.Batch{}
		for _, o := range orders {
			createdAt := o.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			batch.Queue(`
				INSERT INTO conditional_orders (
					account, order_id, order_index, order_type,
					index_token, collateral_token, is_long,
					size_delta, collateral_delta, trigger_price,
					trigger_above_threshold, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				account.Hex(), o.ID, o.Index, string(o.Type),
				o.IndexToken.Hex(), o.CollateralToken.Hex(), o.IsLong,
				numeric(o.SizeDelta), numeric(o.CollateralDelta), numeric(o.TriggerPrice),
				o.TriggerAboveThreshold, createdAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert orders for %s: %w", account.Hex(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit orders for %s: %w", account.Hex(), err)
	}
	return nil
}

// ListByAccount returns the account's orders in order book index order.
func (s *OrderStore) ListByAccount(ctx context.Context, account common.Address) ([]domain.ConditionalOrder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account, order_id, order_index, order_type,
			index_token, collateral_token, is_long,
			size_delta, collateral_delta, trigger_price,
			trigger_above_threshold, created_at
		FROM conditional_orders
		WHERE account = $1
		ORDER BY order_index`, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.ConditionalOrder
	for rows.Next() {
		var (
			o                        domain.ConditionalOrder
			acct, orderType          string
			indexToken, collToken    string
			sizeDelta, collDelta, tp pgtype.Numeric
		)
		if err := rows.Scan(
			&acct, &o.ID, &o.Index, &orderType,
			&indexToken, &collToken, &o.IsLong,
			&sizeDelta, &collDelta, &tp,
			&o.TriggerAboveThreshold, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Account = common.HexToAddress(acct)
		o.Type = domain.OrderType(orderType)
		o.IndexToken = common.HexToAddress(indexToken)
		o.CollateralToken = common.HexToAddress(collToken)
		if o.SizeDelta, err = fromNumeric(sizeDelta); err != nil {
			return nil, err
		}
		if o.CollateralDelta, err = fromNumeric(collDelta); err != nil {
			return nil, err
		}
		if o.TriggerPrice, err = fromNumeric(tp); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

var _ domain.OrderStore = (*OrderStore)(nil)

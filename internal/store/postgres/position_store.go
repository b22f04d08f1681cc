package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Token
// metadata is joined in from the tokens table.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelect = `
	SELECT p.position_key, p.account, p.is_long,
		p.size, p.collateral, p.average_price, p.mark_price,
		p.entry_funding_rate, p.cumulative_funding_rate,
		p.last_increased_time, p.updated_at,
		ct.address, ct.symbol, ct.decimals, ct.is_native,
		it.address, it.symbol, it.decimals, it.is_native
	FROM positions p
	JOIN tokens ct ON ct.address = p.collateral_token
	JOIN tokens it ON it.address = p.index_token`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                          domain.Position
		account, collAddr, idxAddr string
		size, coll, avg, mark      pgtype.Numeric
		entryRate, cumRate         pgtype.Numeric
	)
	err := row.Scan(
		&p.Key, &account, &p.IsLong,
		&size, &coll, &avg, &mark,
		&entryRate, &cumRate,
		&p.LastIncreasedTime, &p.UpdatedAt,
		&collAddr, &p.CollateralToken.Symbol, &p.CollateralToken.Decimals, &p.CollateralToken.IsNative,
		&idxAddr, &p.IndexToken.Symbol, &p.IndexToken.Decimals, &p.IndexToken.IsNative,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Account = common.HexToAddress(account)
	p.CollateralToken.Address = common.HexToAddress(collAddr)
	p.IndexToken.Address = common.HexToAddress(idxAddr)

	for _, f := range []struct {
		dst *fixed.Int
		src pgtype.Numeric
	}{
		{&p.Size, size}, {&p.Collateral, coll}, {&p.AveragePrice, avg}, {&p.MarkPrice, mark},
	} {
		if *f.dst, err = fromNumeric(f.src); err != nil {
			return domain.Position{}, err
		}
	}
	if p.EntryFundingRate, err = fromOptionalNumeric(entryRate); err != nil {
		return domain.Position{}, err
	}
	if p.CumulativeFundingRate, err = fromOptionalNumeric(cumRate); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// Upsert inserts a position snapshot or replaces the stored one. The
// position's tokens must already exist.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			position_key, account, collateral_token, index_token, is_long,
			size, collateral, average_price, mark_price,
			entry_funding_rate, cumulative_funding_rate,
			last_increased_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (position_key) DO UPDATE SET
			size                    = EXCLUDED.size,
			collateral              = EXCLUDED.collateral,
			average_price           = EXCLUDED.average_price,
			mark_price              = EXCLUDED.mark_price,
			entry_funding_rate      = EXCLUDED.entry_funding_rate,
			cumulative_funding_rate = EXCLUDED.cumulative_funding_rate,
			last_increased_time     = EXCLUDED.last_increased_time,
			updated_at              = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.Key, p.Account.Hex(), p.CollateralToken.Address.Hex(), p.IndexToken.Address.Hex(), p.IsLong,
		numeric(p.Size), numeric(p.Collateral), numeric(p.AveragePrice), numeric(p.MarkPrice),
		optionalNumeric(p.EntryFundingRate), optionalNumeric(p.CumulativeFundingRate),
		p.LastIncreasedTime, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.Key, err)
	}
	return nil
}

// GetByKey returns the account's position with the given key.
func (s *PositionStore) GetByKey(ctx context.Context, account common.Address, key string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, positionSelect+` WHERE p.position_key = $1 AND p.account = $2`, key, account.Hex())
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", key, err)
	}
	return p, nil
}

// ListByAccount returns the account's positions, largest first.
func (s *PositionStore) ListByAccount(ctx context.Context, account common.Address) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, positionSelect+` WHERE p.account = $1 ORDER BY p.size DESC`, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Delete removes a closed position.
func (s *PositionStore) Delete(ctx context.Context, account common.Address, key string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE position_key = $1 AND account = $2`, key, account.Hex())
	if err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)

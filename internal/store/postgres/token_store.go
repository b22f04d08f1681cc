package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// TokenStore implements domain.TokenStore using PostgreSQL. Quotes are not
// persisted here; they live in the price cache.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Upsert inserts or refreshes a token's metadata.
func (s *TokenStore) Upsert(ctx context.Context, t domain.Token) error {
	const query = `
		INSERT INTO tokens (address, symbol, decimals, is_native, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (address) DO UPDATE SET
			symbol     = EXCLUDED.symbol,
			decimals   = EXCLUDED.decimals,
			is_native  = EXCLUDED.is_native,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, t.Address.Hex(), t.Symbol, t.Decimals, t.IsNative); err != nil {
		return fmt.Errorf("postgres: upsert token %s: %w", t.Address.Hex(), err)
	}
	return nil
}

func scanToken(row pgx.Row) (domain.Token, error) {
	var t domain.Token
	var addr string
	if err := row.Scan(&addr, &t.Symbol, &t.Decimals, &t.IsNative); err != nil {
		return domain.Token{}, err
	}
	t.Address = common.HexToAddress(addr)
	return t, nil
}

// Get returns a token by address.
func (s *TokenStore) Get(ctx context.Context, address common.Address) (domain.Token, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT address, symbol, decimals, is_native FROM tokens WHERE address = $1`, address.Hex())
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, domain.ErrNotFound
		}
		return domain.Token{}, fmt.Errorf("postgres: get token %s: %w", address.Hex(), err)
	}
	return t, nil
}

// List returns every known token ordered by symbol.
func (s *TokenStore) List(ctx context.Context) ([]domain.Token, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, symbol, decimals, is_native FROM tokens ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

var _ domain.TokenStore = (*TokenStore)(nil)

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each token's
// quote lives at "price:{address}" with the fields "min", "max" (1e30-scaled
// base-10 integers) and "ts" (Unix nanoseconds). Entries expire after ttl so
// a stalled feed leaves tokens unpriced rather than stale.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by c. A zero ttl keeps quotes
// until overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(token common.Address) string {
	return "price:" + token.Hex()
}

func encodePrice(p domain.TokenPrice) map[string]any {
	return map[string]any{
		"min": p.MinPrice.String(),
		"max": p.MaxPrice.String(),
		"ts":  strconv.FormatInt(p.Timestamp.UnixNano(), 10),
	}
}

// decodePrice parses a quote hash. ok is false when the hash is empty.
func decodePrice(token common.Address, vals map[string]string) (domain.TokenPrice, bool, error) {
	if len(vals) == 0 {
		return domain.TokenPrice{}, false, nil
	}
	out := domain.TokenPrice{Token: token}
	if err := out.MinPrice.UnmarshalText([]byte(vals["min"])); err != nil {
		return domain.TokenPrice{}, false, fmt.Errorf("redis: parse min price %s: %w", token.Hex(), err)
	}
	if err := out.MaxPrice.UnmarshalText([]byte(vals["max"])); err != nil {
		return domain.TokenPrice{}, false, fmt.Errorf("redis: parse max price %s: %w", token.Hex(), err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.TokenPrice{}, false, fmt.Errorf("redis: parse ts %s: %w", token.Hex(), err)
	}
	out.Timestamp = time.Unix(0, ts).UTC()
	return out, true, nil
}

// SetTokenPrice stores the latest quote for a token.
func (pc *PriceCache) SetTokenPrice(ctx context.Context, p domain.TokenPrice) error {
	key := priceKey(p.Token)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodePrice(p))
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", p.Token.Hex(), err)
	}
	return nil
}

// GetTokenPrice returns the latest quote, or domain.ErrNotFound.
func (pc *PriceCache) GetTokenPrice(ctx context.Context, token common.Address) (domain.TokenPrice, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(token)).Result()
	if err != nil {
		return domain.TokenPrice{}, fmt.Errorf("redis: get price %s: %w", token.Hex(), err)
	}
	p, ok, err := decodePrice(token, vals)
	if err != nil {
		return domain.TokenPrice{}, err
	}
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

// GetTokenPrices fetches several quotes in one pipeline. Unpriced or
// malformed entries are omitted.
func (pc *PriceCache) GetTokenPrices(ctx context.Context, tokens []common.Address) (map[common.Address]domain.TokenPrice, error) {
	out := make(map[common.Address]domain.TokenPrice, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[common.Address]*redis.MapStringStringCmd, len(tokens))
	for _, t := range tokens {
		cmds[t] = pipe.HGetAll(ctx, priceKey(t))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if p, ok, err := decodePrice(t, vals); err == nil && ok {
			out[t] = p
		}
	}
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)

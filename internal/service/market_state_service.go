package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/perpcloser/internal/crypto"
	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// MarketStateService ingests what the market-state feed delivers (position
// snapshots, token quotes and order book listings) and serves it back.
type MarketStateService struct {
	positions domain.PositionStore
	tokens    domain.TokenStore
	orders    domain.OrderStore
	prices    domain.PriceCache
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewMarketStateService creates a MarketStateService with all required
// dependencies.
func NewMarketStateService(
	positions domain.PositionStore,
	tokens domain.TokenStore,
	orders domain.OrderStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketStateService {
	return &MarketStateService{
		positions: positions,
		tokens:    tokens,
		orders:    orders,
		prices:    prices,
		bus:       bus,
		logger:    logger.With(slog.String("component", "market_state")),
	}
}

// ApplyPosition stores a position snapshot. A snapshot without a key gets
// the vault key derived from its account, tokens and side. Quotes carried
// on the snapshot's tokens are cached as well; invalid quotes are skipped.
func (s *MarketStateService) ApplyPosition(ctx context.Context, pos domain.Position) (domain.Position, error) {
	if pos.Account == (common.Address{}) {
		return domain.Position{}, fmt.Errorf("market_state: position without account: %w", domain.ErrInvalidInput)
	}
	if pos.Key == "" {
		pos.Key = crypto.PositionKey(pos.Account, pos.CollateralToken.Address, pos.IndexToken.Address, pos.IsLong)
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}

	for _, tok := range []domain.Token{pos.CollateralToken, pos.IndexToken} {
		if err := s.tokens.Upsert(ctx, tok); err != nil {
			return domain.Position{}, fmt.Errorf("market_state: upsert token %s: %w", tok.Symbol, err)
		}
		if tok.MinPrice == nil || tok.MaxPrice == nil {
			continue
		}
		err := s.ApplyPrice(ctx, domain.TokenPrice{
			Token:     tok.Address,
			MinPrice:  *tok.MinPrice,
			MaxPrice:  *tok.MaxPrice,
			Timestamp: pos.UpdatedAt,
		})
		if errors.Is(err, domain.ErrInvalidInput) {
			s.logger.WarnContext(ctx, "skipping invalid token quote",
				slog.String("token", tok.Address.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err != nil {
			return domain.Position{}, err
		}
	}

	if err := s.positions.Upsert(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("market_state: upsert position %s: %w", pos.Key, err)
	}
	s.logger.DebugContext(ctx, "position applied",
		slog.String("key", pos.Key),
		slog.String("account", pos.Account.Hex()),
		slog.String("size", pos.Size.String()),
	)
	return pos, nil
}

// ApplyPrice caches a token quote and broadcasts it.
func (s *MarketStateService) ApplyPrice(ctx context.Context, price domain.TokenPrice) error {
	if price.MinPrice.Sign() <= 0 || price.MaxPrice.Lt(price.MinPrice) {
		return fmt.Errorf("market_state: quote %s min=%s max=%s: %w",
			price.Token.Hex(), price.MinPrice, price.MaxPrice, domain.ErrInvalidInput)
	}
	if err := s.prices.SetTokenPrice(ctx, price); err != nil {
		return fmt.Errorf("market_state: set price %s: %w", price.Token.Hex(), err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"token":     price.Token.Hex(),
		"min_price": price.MinPrice.String(),
		"max_price": price.MaxPrice.String(),
	})
	if pubErr := s.bus.Publish(ctx, domain.ChannelPriceEvents, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("token", price.Token.Hex()),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// ApplyOrders replaces the trader's known resting orders.
func (s *MarketStateService) ApplyOrders(ctx context.Context, snap domain.OrderBookSnapshot) error {
	for i := range snap.Orders {
		if snap.Orders[i].Account == (common.Address{}) {
			snap.Orders[i].Account = snap.Account
		}
		if snap.Orders[i].Account != snap.Account {
			return fmt.Errorf("market_state: order %s belongs to %s, not %s: %w",
				snap.Orders[i].ID, snap.Orders[i].Account.Hex(), snap.Account.Hex(), domain.ErrInvalidInput)
		}
	}
	if err := s.orders.ReplaceForAccount(ctx, snap.Account, snap.Orders); err != nil {
		return fmt.Errorf("market_state: replace orders for %s: %w", snap.Account.Hex(), err)
	}
	return nil
}

// Position returns a stored position with the latest cached quotes applied.
func (s *MarketStateService) Position(ctx context.Context, account common.Address, key string) (domain.Position, error) {
	pos, err := s.positions.GetByKey(ctx, account, key)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_state: get position %s: %w", key, err)
	}
	prices, err := s.prices.GetTokenPrices(ctx, []common.Address{pos.IndexToken.Address, pos.CollateralToken.Address})
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_state: get prices: %w", err)
	}
	return overlayPrices(pos, prices), nil
}

// Positions lists the account's stored positions with the latest cached
// quotes applied.
func (s *MarketStateService) Positions(ctx context.Context, account common.Address) ([]domain.Position, error) {
	out, err := s.positions.ListByAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("market_state: list positions: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	seen := make(map[common.Address]bool)
	var tokens []common.Address
	for _, pos := range out {
		for _, addr := range []common.Address{pos.IndexToken.Address, pos.CollateralToken.Address} {
			if !seen[addr] {
				seen[addr] = true
				tokens = append(tokens, addr)
			}
		}
	}
	prices, err := s.prices.GetTokenPrices(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("market_state: get prices: %w", err)
	}
	for i := range out {
		out[i] = overlayPrices(out[i], prices)
	}
	return out, nil
}

// Orders lists the account's resting orders.
func (s *MarketStateService) Orders(ctx context.Context, account common.Address) ([]domain.ConditionalOrder, error) {
	out, err := s.orders.ListByAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("market_state: list orders: %w", err)
	}
	return out, nil
}

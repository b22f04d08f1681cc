// Package feed ingests market state published on the signal bus by the
// upstream price and position indexers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpcloser/internal/domain"
)

// StateSink receives decoded market state. *service.MarketStateService
// satisfies it.
type StateSink interface {
	ApplyPosition(ctx context.Context, pos domain.Position) (domain.Position, error)
	ApplyPrice(ctx context.Context, price domain.TokenPrice) error
	ApplyOrders(ctx context.Context, snap domain.OrderBookSnapshot) error
}

// Listener subscribes to the market-state channels and applies every
// message to a StateSink. Malformed messages are logged and skipped.
type Listener struct {
	bus    domain.SignalBus
	sink   StateSink
	logger *slog.Logger
}

// NewListener creates a Listener.
func NewListener(bus domain.SignalBus, sink StateSink, logger *slog.Logger) *Listener {
	return &Listener{
		bus:    bus,
		sink:   sink,
		logger: logger.With(slog.String("component", "feed_listener")),
	}
}

type handler func(ctx context.Context, data []byte) error

func (l *Listener) handlers() map[string]handler {
	return map[string]handler{
		domain.ChannelPositions: l.handlePosition,
		domain.ChannelPrices:    l.handlePrice,
		domain.ChannelOrders:    l.handleOrders,
	}
}

// Run subscribes to all market-state channels and blocks until ctx is
// cancelled or a subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for channel, h := range l.handlers() {
		ch, err := l.bus.Subscribe(gctx, channel)
		if err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", channel, err)
		}
		g.Go(func() error { return l.consume(gctx, channel, ch, h) })
	}
	l.logger.Info("feed listener started")
	defer l.logger.Info("feed listener stopped")
	return g.Wait()
}

func (l *Listener) consume(ctx context.Context, channel string, ch <-chan []byte, h handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := h(ctx, data); err != nil {
				l.logger.Warn("feed message rejected",
					slog.String("channel", channel),
					slog.Int("payload_len", len(data)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (l *Listener) handlePosition(ctx context.Context, data []byte) error {
	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return fmt.Errorf("feed: decode position: %w", err)
	}
	_, err := l.sink.ApplyPosition(ctx, pos)
	return err
}

func (l *Listener) handlePrice(ctx context.Context, data []byte) error {
	var p domain.TokenPrice
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("feed: decode price: %w", err)
	}
	return l.sink.ApplyPrice(ctx, p)
}

func (l *Listener) handleOrders(ctx context.Context, data []byte) error {
	var snap domain.OrderBookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("feed: decode orders: %w", err)
	}
	return l.sink.ApplyOrders(ctx, snap)
}

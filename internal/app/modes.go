package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpcloser/internal/feed"
	"github.com/alanyoungcy/perpcloser/internal/server"
	"github.com/alanyoungcy/perpcloser/internal/server/handler"
	"github.com/alanyoungcy/perpcloser/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// ServerMode serves the close API and websocket sessions.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServer(ctx, g, deps); err != nil {
		return err
	}
	return ignoreCanceled(g.Wait())
}

// FeedMode ingests market state from the bus.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// FullMode runs the feed listener and the server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps)
	if err := a.startServer(ctx, g, deps); err != nil {
		return err
	}
	return ignoreCanceled(g.Wait())
}

func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	state := NewMarketStateService(deps, a.logger)
	listener := feed.NewListener(deps.SignalBus, state, a.logger)
	g.Go(func() error {
		return listener.Run(ctx)
	})
}

func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return nil
	}

	closes, err := NewCloseService(a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("app: close service: %w", err)
	}
	state := NewMarketStateService(deps, a.logger)
	hub := ws.NewHub(closes, deps.SignalBus, ws.Config{AllowedOrigins: a.cfg.Server.CORSOrigins}, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Close:     handler.NewCloseHandler(closes, a.logger),
		Positions: handler.NewPositionHandler(state, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}

// ignoreCanceled treats a context cancellation as a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

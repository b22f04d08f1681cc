package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/perpcloser/internal/cache/redis"
	"github.com/alanyoungcy/perpcloser/internal/closeplan"
	"github.com/alanyoungcy/perpcloser/internal/config"
	"github.com/alanyoungcy/perpcloser/internal/contract"
	"github.com/alanyoungcy/perpcloser/internal/crypto"
	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/fixed"
	"github.com/alanyoungcy/perpcloser/internal/margin"
	"github.com/alanyoungcy/perpcloser/internal/server/handler"
	"github.com/alanyoungcy/perpcloser/internal/service"
	"github.com/alanyoungcy/perpcloser/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	TokenStore    domain.TokenStore
	PositionStore domain.PositionStore
	OrderStore    domain.OrderStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Health checks, keyed by dependency name.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TokenStore = postgres.NewTokenStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Pingers["postgres"] = pgClient

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Pingers["redis"] = redisClient

	return deps, cleanup, nil
}

// CalculatorConfig converts the risk and chain sections into calculator
// settings.
func CalculatorConfig(cfg *config.Config) (closeplan.Config, error) {
	maxLiq, err := leverageBps(cfg.Risk.MaxLiquidationLev)
	if err != nil {
		return closeplan.Config{}, err
	}
	minLev, err := leverageBps(cfg.Risk.MinLeverage)
	if err != nil {
		return closeplan.Config{}, err
	}
	maxLev, err := leverageBps(cfg.Risk.MaxLeverage)
	if err != nil {
		return closeplan.Config{}, err
	}
	return closeplan.Config{
		Margin: margin.Params{
			MarginFeeBasisPoints: fixed.New(cfg.Risk.MarginFeeBps),
			LiquidationFee:       fixed.Expand(cfg.Risk.LiquidationFeeUSD, margin.USDDecimals),
			MaxLeverage:          maxLiq,
			MinProfitBasisPoints: fixed.New(cfg.Risk.MinProfitBps),
			MinProfitWindow:      cfg.Risk.MinProfitWindow.Duration,
			FundingRatePrecision: fixed.New(cfg.Risk.FundingRatePrecision),
		},
		Rules: closeplan.Rules{
			Dust:        fixed.Expand(cfg.Risk.DustUSD, margin.USDDecimals),
			MinLeftover: fixed.Expand(cfg.Risk.MinLeftoverUSD, margin.USDDecimals),
			MinLeverage: minLev,
			MaxLeverage: maxLev,
		},
		NativeToken: cfg.Chain.NativeTokenAddress(),
		StableToken: cfg.Chain.StableTokenAddress(),
	}, nil
}

// leverageBps turns a leverage multiple such as 30.5 into basis points.
func leverageBps(x float64) (fixed.Int, error) {
	bps := decimal.NewFromFloat(x).Shift(4).Truncate(0)
	v, err := fixed.FromBig(bps.BigInt())
	if err != nil {
		return fixed.Int{}, fmt.Errorf("wire: leverage %v: %w", x, err)
	}
	return v, nil
}

// NewCloseService builds the close service with its calculator, encoder and
// sealer.
func NewCloseService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*service.CloseService, error) {
	calcCfg, err := CalculatorConfig(cfg)
	if err != nil {
		return nil, err
	}
	encoder, err := contract.NewEncoder(cfg.Chain.RouterAddress(), cfg.Chain.OrderBookAddress())
	if err != nil {
		return nil, fmt.Errorf("wire: encoder: %w", err)
	}
	fee, err := cfg.Chain.ExecutionFeeWei()
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return service.NewCloseService(
		deps.PositionStore,
		deps.OrderStore,
		deps.PriceCache,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		closeplan.NewCalculator(calcCfg),
		encoder,
		crypto.NewSealer(cfg.Signer.HMACSecret),
		service.CloseServiceConfig{
			ExecutionFee: fee,
			LockTTL:      cfg.Redis.LockTTL.Duration,
			Session: service.SessionDefaults{
				SlippageBps:   cfg.Session.SlippageBps,
				KeepLeverage:  cfg.Session.KeepLeverage,
				OrdersEnabled: cfg.Session.OrdersEnabled,
				PnLInLeverage: cfg.Session.PnLInLeverage,
			},
		},
		logger,
	), nil
}

// NewMarketStateService builds the market-state service over deps.
func NewMarketStateService(deps *Dependencies, logger *slog.Logger) *service.MarketStateService {
	return service.NewMarketStateService(
		deps.PositionStore,
		deps.TokenStore,
		deps.OrderStore,
		deps.PriceCache,
		deps.SignalBus,
		logger,
	)
}

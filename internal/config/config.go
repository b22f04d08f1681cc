// Package config defines the top-level configuration for the close service
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPCLOSER_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Chain    ChainConfig    `toml:"chain"`
	Signer   SignerConfig   `toml:"signer"`
	Risk     RiskConfig     `toml:"risk"`
	Session  SessionConfig  `toml:"session"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and cache lifetimes.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// PriceTTL bounds how long a bid/ask snapshot is served after the feed
	// stops updating it.
	PriceTTL     duration `toml:"price_ttl"`
	LockTTL      duration `toml:"lock_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// duration wraps time.Duration so it can be decoded from TOML strings such as
// "5m" or "1h30m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the HTTP API server settings.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per RateWindow per client IP; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ChainConfig names the contracts and tokens close requests refer to.
type ChainConfig struct {
	ChainID     int64  `toml:"chain_id"`
	Router      string `toml:"router"`
	OrderBook   string `toml:"order_book"`
	NativeToken string `toml:"native_token"`
	StableToken string `toml:"stable_token"`
	// ExecutionFee is the keeper fee in wei attached to trigger orders.
	ExecutionFee string `toml:"execution_fee"`
}

// RouterAddress returns Router as an address.
func (c ChainConfig) RouterAddress() common.Address { return common.HexToAddress(c.Router) }

// OrderBookAddress returns OrderBook as an address.
func (c ChainConfig) OrderBookAddress() common.Address { return common.HexToAddress(c.OrderBook) }

// NativeTokenAddress returns NativeToken as an address.
func (c ChainConfig) NativeTokenAddress() common.Address { return common.HexToAddress(c.NativeToken) }

// StableTokenAddress returns StableToken as an address.
func (c ChainConfig) StableTokenAddress() common.Address { return common.HexToAddress(c.StableToken) }

// ExecutionFeeWei parses ExecutionFee.
func (c ChainConfig) ExecutionFeeWei() (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(c.ExecutionFee), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("chain: execution_fee %q is not a non-negative integer", c.ExecutionFee)
	}
	return v, nil
}

// SignerConfig holds the secret shared with the external signer that seals
// submitted close requests.
type SignerConfig struct {
	HMACSecret string `toml:"hmac_secret"`
}

// RiskConfig holds the vault margin constants. USD amounts are whole dollars,
// leverage values are multiples ("30.5" means 30.5x).
type RiskConfig struct {
	MarginFeeBps         int64    `toml:"margin_fee_bps"`
	LiquidationFeeUSD    int64    `toml:"liquidation_fee_usd"`
	MaxLiquidationLev    float64  `toml:"max_liquidation_leverage"`
	DustUSD              int64    `toml:"dust_usd"`
	MinLeftoverUSD       int64    `toml:"min_leftover_usd"`
	MinLeverage          float64  `toml:"min_leverage"`
	MaxLeverage          float64  `toml:"max_leverage"`
	MinProfitBps         int64    `toml:"min_profit_bps"`
	MinProfitWindow      duration `toml:"min_profit_window"`
	FundingRatePrecision int64    `toml:"funding_rate_precision"`
}

// SessionConfig holds the trader preferences used when a request leaves
// them unset.
type SessionConfig struct {
	SlippageBps   int64 `toml:"slippage_bps"`
	KeepLeverage  bool  `toml:"keep_leverage"`
	OrdersEnabled bool  `toml:"orders_enabled"`
	PnLInLeverage bool  `toml:"pnl_in_leverage"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "perpcloser",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PriceTTL:     duration{time.Minute},
			LockTTL:      duration{30 * time.Second},
			StreamMaxLen: 10_000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Chain: ChainConfig{
			ChainID:      42161,
			Router:       "0xaBBc5F99639c9B6bCb58544ddf04EFA6802F4064",
			OrderBook:    "0x09f77E8A13De9a35a7231028187e9fD5DB8a2ACB",
			NativeToken:  "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
			StableToken:  "0x0000000000000000000000000000000000000001",
			ExecutionFee: "300000000000000",
		},
		Risk: RiskConfig{
			MarginFeeBps:         10,
			LiquidationFeeUSD:    5,
			MaxLiquidationLev:    100,
			DustUSD:              1,
			MinLeftoverUSD:       10,
			MinLeverage:          1.1,
			MaxLeverage:          30.5,
			MinProfitBps:         150,
			MinProfitWindow:      duration{12 * time.Hour},
			FundingRatePrecision: 1_000_000,
		},
		Session: SessionConfig{
			SlippageBps:   30,
			KeepLeverage:  true,
			OrdersEnabled: true,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"feed":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, feed, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.PriceTTL.Duration <= 0 {
		errs = append(errs, "redis: price_ttl must be > 0")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}
	if c.Redis.StreamMaxLen < 0 {
		errs = append(errs, "redis: stream_max_len must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Chain
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	for _, a := range []struct{ name, addr string }{
		{"router", c.Chain.Router},
		{"order_book", c.Chain.OrderBook},
		{"native_token", c.Chain.NativeToken},
		{"stable_token", c.Chain.StableToken},
	} {
		if !common.IsHexAddress(a.addr) {
			errs = append(errs, fmt.Sprintf("chain: %s %q is not a hex address", a.name, a.addr))
		}
	}
	if _, err := c.Chain.ExecutionFeeWei(); err != nil {
		errs = append(errs, err.Error())
	}

	// Signer. The feed mode never submits.
	if strings.ToLower(c.Mode) != "feed" && strings.TrimSpace(c.Signer.HMACSecret) == "" {
		errs = append(errs, "signer: hmac_secret is required for mode "+c.Mode)
	}

	// Risk
	if c.Risk.MarginFeeBps < 0 || c.Risk.MarginFeeBps >= 10_000 {
		errs = append(errs, "risk: margin_fee_bps must be in [0, 10000)")
	}
	if c.Risk.LiquidationFeeUSD < 0 {
		errs = append(errs, "risk: liquidation_fee_usd must be >= 0")
	}
	if c.Risk.MaxLiquidationLev <= 1 {
		errs = append(errs, "risk: max_liquidation_leverage must be > 1")
	}
	if c.Risk.MinLeverage <= 0 || c.Risk.MinLeverage >= c.Risk.MaxLeverage {
		errs = append(errs, "risk: min_leverage must be > 0 and below max_leverage")
	}
	if c.Risk.DustUSD < 0 || c.Risk.MinLeftoverUSD < 0 {
		errs = append(errs, "risk: dust_usd and min_leftover_usd must be >= 0")
	}
	if c.Risk.MinProfitBps < 0 {
		errs = append(errs, "risk: min_profit_bps must be >= 0")
	}
	if c.Risk.FundingRatePrecision <= 0 {
		errs = append(errs, "risk: funding_rate_precision must be > 0")
	}

	// Session
	if c.Session.SlippageBps < 0 || c.Session.SlippageBps >= 10_000 {
		errs = append(errs, "session: slippage_bps must be in [0, 10000)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

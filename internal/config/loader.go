package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPCLOSER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPCLOSER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PERPCLOSER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PERPCLOSER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PERPCLOSER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PERPCLOSER_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "PERPCLOSER_DATABASE_USER")
	setStr(&cfg.Database.Password, "PERPCLOSER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PERPCLOSER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PERPCLOSER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PERPCLOSER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PERPCLOSER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPCLOSER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPCLOSER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPCLOSER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPCLOSER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPCLOSER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPCLOSER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "PERPCLOSER_REDIS_PRICE_TTL")
	setDuration(&cfg.Redis.LockTTL, "PERPCLOSER_REDIS_LOCK_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "PERPCLOSER_REDIS_STREAM_MAX_LEN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PERPCLOSER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PERPCLOSER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPCLOSER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PERPCLOSER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PERPCLOSER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PERPCLOSER_SERVER_RATE_WINDOW")

	// ── Chain ──
	setInt64(&cfg.Chain.ChainID, "PERPCLOSER_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.Router, "PERPCLOSER_CHAIN_ROUTER")
	setStr(&cfg.Chain.OrderBook, "PERPCLOSER_CHAIN_ORDER_BOOK")
	setStr(&cfg.Chain.NativeToken, "PERPCLOSER_CHAIN_NATIVE_TOKEN")
	setStr(&cfg.Chain.StableToken, "PERPCLOSER_CHAIN_STABLE_TOKEN")
	setStr(&cfg.Chain.ExecutionFee, "PERPCLOSER_CHAIN_EXECUTION_FEE")

	// ── Signer ──
	setStr(&cfg.Signer.HMACSecret, "PERPCLOSER_SIGNER_HMAC_SECRET")

	// ── Session ──
	setInt64(&cfg.Session.SlippageBps, "PERPCLOSER_SESSION_SLIPPAGE_BPS")
	setBool(&cfg.Session.KeepLeverage, "PERPCLOSER_SESSION_KEEP_LEVERAGE")
	setBool(&cfg.Session.OrdersEnabled, "PERPCLOSER_SESSION_ORDERS_ENABLED")
	setBool(&cfg.Session.PnLInLeverage, "PERPCLOSER_SESSION_PNL_IN_LEVERAGE")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPCLOSER_MODE")
	setStr(&cfg.LogLevel, "PERPCLOSER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

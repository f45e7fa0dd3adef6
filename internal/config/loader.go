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
// built-in defaults, applies ONESET_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ONESET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ONESET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ONESET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ONESET_WALLET_KEY_PASSWORD")

	// ── Yellow ──
	setStr(&cfg.Yellow.APIURL, "ONESET_YELLOW_API_URL")
	setStr(&cfg.Yellow.APIKey, "ONESET_YELLOW_API_KEY")
	setStr(&cfg.Yellow.APISecret, "ONESET_YELLOW_API_SECRET")
	setInt(&cfg.Yellow.ChainID, "ONESET_YELLOW_CHAIN_ID")
	setDuration(&cfg.Yellow.Timeout, "ONESET_YELLOW_TIMEOUT")

	// ── Bridge ──
	setStr(&cfg.Bridge.APIURL, "ONESET_BRIDGE_API_URL")
	setFloat64(&cfg.Bridge.SlippagePercent, "ONESET_BRIDGE_SLIPPAGE_PERCENT")
	setStr(&cfg.Bridge.RouterAddress, "ONESET_BRIDGE_ROUTER_ADDRESS")
	setDuration(&cfg.Bridge.Timeout, "ONESET_BRIDGE_TIMEOUT")

	// ── Dex ──
	setStr(&cfg.Dex.APIURL, "ONESET_DEX_API_URL")
	setStr(&cfg.Dex.APIKey, "ONESET_DEX_API_KEY")
	setInt(&cfg.Dex.ChainID, "ONESET_DEX_CHAIN_ID")
	setDuration(&cfg.Dex.Timeout, "ONESET_DEX_TIMEOUT")

	// ── Ethereum ──
	setStr(&cfg.Ethereum.RPCURL, "ONESET_ETHEREUM_RPC_URL")
	setInt(&cfg.Ethereum.GasLimit, "ONESET_ETHEREUM_GAS_LIMIT")
	setFloat64(&cfg.Ethereum.GasMultiplier, "ONESET_ETHEREUM_GAS_MULTIPLIER")

	// ── Prices ──
	setStr(&cfg.Prices.APIURL, "ONESET_PRICES_API_URL")
	setDuration(&cfg.Prices.RefreshInterval, "ONESET_PRICES_REFRESH_INTERVAL")
	setDuration(&cfg.Prices.Timeout, "ONESET_PRICES_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ONESET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ONESET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ONESET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ONESET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ONESET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ONESET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ONESET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ONESET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ONESET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ONESET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ONESET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ONESET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ONESET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ONESET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ONESET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ONESET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ONESET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ONESET_S3_REGION")
	setStr(&cfg.S3.Bucket, "ONESET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ONESET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ONESET_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ONESET_S3_FORCE_PATH_STYLE")

	// ── Session ──
	setInt64(&cfg.Session.MinDepositUnits, "ONESET_SESSION_MIN_DEPOSIT_UNITS")
	setDuration(&cfg.Session.DefaultDuration, "ONESET_SESSION_DEFAULT_DURATION")
	setDuration(&cfg.Session.CountdownInterval, "ONESET_SESSION_COUNTDOWN_INTERVAL")

	// ── Agent ──
	setStr(&cfg.Agent.Strategy, "ONESET_AGENT_STRATEGY")
	setInt(&cfg.Agent.MaxTrades, "ONESET_AGENT_MAX_TRADES")
	setFloat64(&cfg.Agent.MaxDrawdown, "ONESET_AGENT_MAX_DRAWDOWN")
	setDuration(&cfg.Agent.TickInterval, "ONESET_AGENT_TICK_INTERVAL")
	setInt64(&cfg.Agent.TradeSizeUnits, "ONESET_AGENT_TRADE_SIZE_UNITS")
	setStr(&cfg.Agent.SignalSource, "ONESET_AGENT_SIGNAL_SOURCE")
	setFloat64(&cfg.Agent.TakeProfitPct, "ONESET_AGENT_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Agent.StopLossPct, "ONESET_AGENT_STOP_LOSS_PCT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ONESET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ONESET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ONESET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ONESET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ONESET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ONESET_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ONESET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ONESET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ONESET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ONESET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ONESET_MODE")
	setStr(&cfg.LogLevel, "ONESET_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

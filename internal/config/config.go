// Package config defines the top-level configuration for the OneSet backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ONESET_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Yellow   YellowConfig   `toml:"yellow"`
	Bridge   BridgeConfig   `toml:"bridge"`
	Dex      DexConfig      `toml:"dex"`
	Ethereum EthereumConfig `toml:"ethereum"`
	Prices   PricesConfig   `toml:"prices"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Session  SessionConfig  `toml:"session"`
	Agent    AgentConfig    `toml:"agent"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the operator wallet credentials used to sign trade
// intents and settlements.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// YellowConfig holds the state-channel network endpoint parameters. APIKey
// and APISecret enable HMAC request signing when both are set.
type YellowConfig struct {
	APIURL    string   `toml:"api_url"`
	APIKey    string   `toml:"api_key"`
	APISecret string   `toml:"api_secret"`
	ChainID   int      `toml:"chain_id"`
	Timeout   duration `toml:"timeout"`
}

// BridgeConfig holds the cross-chain bridge/router endpoint parameters.
type BridgeConfig struct {
	APIURL          string   `toml:"api_url"`
	SlippagePercent float64  `toml:"slippage_percent"`
	RouterAddress   string   `toml:"router_address"`
	Timeout         duration `toml:"timeout"`
}

// DexConfig holds the DEX aggregator endpoint parameters.
type DexConfig struct {
	APIURL  string   `toml:"api_url"`
	APIKey  string   `toml:"api_key"`
	ChainID int      `toml:"chain_id"`
	Timeout duration `toml:"timeout"`
}

// EthereumConfig holds the JSON-RPC endpoint used to broadcast bridge and
// swap transactions. An empty rpc_url disables on-chain broadcasting;
// prepared routes are then quoted but not executed.
type EthereumConfig struct {
	RPCURL        string  `toml:"rpc_url"`
	GasLimit      int     `toml:"gas_limit"`
	GasMultiplier float64 `toml:"gas_multiplier"`
}

// PricesConfig holds market-data provider parameters.
type PricesConfig struct {
	APIURL          string   `toml:"api_url"`
	RefreshInterval duration `toml:"refresh_interval"`
	Timeout         duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the settlement
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SessionConfig holds session lifecycle parameters.
type SessionConfig struct {
	MinDepositUnits   int64    `toml:"min_deposit_units"` // fixed-point, 1e6 = 1 USDC
	DefaultDuration   duration `toml:"default_duration"`
	CountdownInterval duration `toml:"countdown_interval"`
}

// AgentConfig holds the trading agent's defaults and tick parameters.
type AgentConfig struct {
	Strategy       string   `toml:"strategy"`
	MaxTrades      int      `toml:"max_trades"`
	MaxDrawdown    float64  `toml:"max_drawdown"` // percent
	TickInterval   duration `toml:"tick_interval"`
	TradeSizeUnits int64    `toml:"trade_size_units"`
	SignalSource   string   `toml:"signal_source"` // "synthetic" or "indicator"
	TakeProfitPct  float64  `toml:"take_profit_pct"`
	StopLossPct    float64  `toml:"stop_loss_pct"`
}

// ServerConfig holds HTTP server parameters. RateLimit is the per-client
// request budget per RateWindow; zero disables rate limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Yellow: YellowConfig{
			APIURL:  "https://api.yellownetwork.io",
			ChainID: 1,
			Timeout: duration{15 * time.Second},
		},
		Bridge: BridgeConfig{
			APIURL:          "https://li.quest/v1",
			SlippagePercent: 0.5,
			RouterAddress:   "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE",
			Timeout:         duration{20 * time.Second},
		},
		Dex: DexConfig{
			APIURL:  "https://api.1inch.dev/swap/v6.0",
			ChainID: 1,
			Timeout: duration{15 * time.Second},
		},
		Ethereum: EthereumConfig{
			GasLimit:      250_000,
			GasMultiplier: 1.2,
		},
		Prices: PricesConfig{
			APIURL:          "https://api.coingecko.com/api/v3",
			RefreshInterval: duration{5 * time.Second},
			Timeout:         duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oneset",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oneset-settlements",
			ForcePathStyle: true,
		},
		Session: SessionConfig{
			MinDepositUnits:   100_000, // 0.1 USDC
			DefaultDuration:   duration{time.Hour},
			CountdownInterval: duration{time.Second},
		},
		Agent: AgentConfig{
			Strategy:       "trend_follow",
			MaxTrades:      10,
			MaxDrawdown:    5,
			TickInterval:   duration{5 * time.Second},
			TradeSizeUnits: 500_000, // 0.5 USDC
			SignalSource:   "synthetic",
			TakeProfitPct:  3,
			StopLossPct:    2,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"session_created", "session_expired", "session_settled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStrategies = map[string]bool{
	"trend_follow":   true,
	"mean_reversion": true,
	"momentum":       true,
}

var validSignalSources = map[string]bool{
	"synthetic": true,
	"indicator": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — trading modes need a signing key from one of the two sources.
	if c.Mode == "full" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Yellow.APIURL == "" {
		errs = append(errs, "yellow: api_url must not be empty")
	}
	if c.Yellow.ChainID <= 0 {
		errs = append(errs, "yellow: chain_id must be positive")
	}
	if c.Bridge.APIURL == "" {
		errs = append(errs, "bridge: api_url must not be empty")
	}
	if c.Bridge.SlippagePercent < 0 || c.Bridge.SlippagePercent > 100 {
		errs = append(errs, fmt.Sprintf("bridge: slippage_percent must be 0-100, got %g", c.Bridge.SlippagePercent))
	}
	if c.Ethereum.RPCURL != "" {
		if c.Ethereum.GasLimit <= 0 {
			errs = append(errs, "ethereum: gas_limit must be > 0")
		}
		if c.Ethereum.GasMultiplier < 1 {
			errs = append(errs, fmt.Sprintf("ethereum: gas_multiplier must be >= 1, got %g", c.Ethereum.GasMultiplier))
		}
	}
	if c.Prices.APIURL == "" {
		errs = append(errs, "prices: api_url must not be empty")
	}
	if c.Prices.RefreshInterval.Duration <= 0 {
		errs = append(errs, "prices: refresh_interval must be positive")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Session.MinDepositUnits <= 0 {
		errs = append(errs, "session: min_deposit_units must be > 0")
	}
	if c.Session.DefaultDuration.Duration <= 0 {
		errs = append(errs, "session: default_duration must be positive")
	}
	if c.Session.CountdownInterval.Duration <= 0 {
		errs = append(errs, "session: countdown_interval must be positive")
	}

	if !validStrategies[c.Agent.Strategy] {
		errs = append(errs, fmt.Sprintf("agent: unknown strategy %q (valid: trend_follow, mean_reversion, momentum)", c.Agent.Strategy))
	}
	if !validSignalSources[c.Agent.SignalSource] {
		errs = append(errs, fmt.Sprintf("agent: unknown signal_source %q (valid: synthetic, indicator)", c.Agent.SignalSource))
	}
	if c.Agent.MaxTrades < 1 {
		errs = append(errs, "agent: max_trades must be >= 1")
	}
	if c.Agent.MaxDrawdown <= 0 || c.Agent.MaxDrawdown > 100 {
		errs = append(errs, fmt.Sprintf("agent: max_drawdown must be in (0,100], got %g", c.Agent.MaxDrawdown))
	}
	if c.Agent.TickInterval.Duration <= 0 {
		errs = append(errs, "agent: tick_interval must be positive")
	}
	if c.Agent.TradeSizeUnits <= 0 {
		errs = append(errs, "agent: trade_size_units must be > 0")
	}
	if c.Agent.TakeProfitPct <= 0 {
		errs = append(errs, "agent: take_profit_pct must be > 0")
	}
	if c.Agent.StopLossPct <= 0 {
		errs = append(errs, "agent: stop_loss_pct must be > 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

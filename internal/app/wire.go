package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	s3blob "github.com/oneset-labs/onesetd/internal/blob/s3"
	"github.com/oneset-labs/onesetd/internal/cache/redis"
	"github.com/oneset-labs/onesetd/internal/config"
	"github.com/oneset-labs/onesetd/internal/crypto"
	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/ethereum"
	"github.com/oneset-labs/onesetd/internal/notify"
	"github.com/oneset-labs/onesetd/internal/oracle"
	"github.com/oneset-labs/onesetd/internal/platform/lifi"
	"github.com/oneset-labs/onesetd/internal/platform/oneinch"
	"github.com/oneset-labs/onesetd/internal/platform/yellow"
	"github.com/oneset-labs/onesetd/internal/signal"
	"github.com/oneset-labs/onesetd/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores. Nil in modes that run without Postgres.
	SessionStore domain.SessionStore
	TradeStore   domain.TradeStore
	AuditStore   domain.AuditStore

	// Redis-backed infrastructure.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Bus         domain.EventBus

	// Object storage. Nil when S3 is not configured for the mode.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Signing and platform clients.
	Signer *crypto.Signer
	Yellow *yellow.Client
	Bridge *lifi.Client
	Dex    *oneinch.Client // nil without an API key
	Eth    *ethereum.Client

	// Market data.
	Feed    *oracle.Feed
	Tracker *signal.Tracker // nil when signal_source is synthetic
	Signals signal.Source

	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require persistence.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that touch the settlement archive.
func needsS3(mode string) bool {
	switch mode {
	case "server", "monitor", "full":
		return true
	default:
		return false
	}
}

// needsSigner returns true for modes that sign intents and settlements.
func needsSigner(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	var (
		sessionStore *postgres.SessionStore
		tradeStore   *postgres.TradeStore
	)

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		sessionStore = postgres.NewSessionStore(pool)
		tradeStore = postgres.NewTradeStore(pool)
		deps.SessionStore = sessionStore
		deps.TradeStore = tradeStore
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)

	// --- S3 settlement archive ---
	if needsS3(mode) && cfg.S3.Endpoint != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         strings.HasPrefix(cfg.S3.Endpoint, "https://"),
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)

		if sessionStore != nil && tradeStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				writer,
				sessionStore,
				tradeStore,
				deps.AuditStore,
			)
		}
	}

	// --- Operator wallet and signing ---
	if needsSigner(mode) {
		key, err := resolveWalletKey(cfg.Wallet)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Yellow.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer

		if cfg.Ethereum.RPCURL != "" {
			ethClient, err := ethereum.NewClient(
				cfg.Ethereum.RPCURL,
				key,
				int64(cfg.Yellow.ChainID),
				cfg.Ethereum.GasLimit,
				cfg.Ethereum.GasMultiplier,
			)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: ethereum: %w", err)
			}
			closers = append(closers, ethClient.Close)
			deps.Eth = ethClient
		}
	}

	// --- Platform clients ---
	var hmacAuth *crypto.HMACAuth
	if cfg.Yellow.APIKey != "" && cfg.Yellow.APISecret != "" {
		hmacAuth = &crypto.HMACAuth{Key: cfg.Yellow.APIKey, Secret: cfg.Yellow.APISecret}
	}
	deps.Yellow = yellow.NewClient(cfg.Yellow.APIURL, hmacAuth, logger)

	var sender lifi.TxSender
	if deps.Eth != nil {
		sender = deps.Eth
	}
	deps.Bridge = lifi.NewClient(cfg.Bridge.APIURL, sender, logger)
	deps.Bridge.SetSlippage(cfg.Bridge.SlippagePercent)

	if cfg.Dex.APIKey != "" {
		deps.Dex = oneinch.NewClient(cfg.Dex.APIURL, cfg.Dex.APIKey, cfg.Dex.ChainID, sender, logger)
	}

	// --- Market data ---
	gecko := oracle.NewCoinGeckoClient(cfg.Prices.APIURL, cfg.Prices.Timeout.Duration, logger)
	deps.Feed = oracle.NewFeed(gecko, deps.PriceCache, logger)

	switch cfg.Agent.SignalSource {
	case "indicator":
		tracker := signal.NewTracker(deps.Feed, time.Hour)
		deps.Feed.AddObserver(func(q domain.PriceQuote) {
			tracker.Observe(q.Symbol, q.Price, q.At)
		})
		deps.Tracker = tracker
		deps.Signals = tracker
	default:
		deps.Signals = signal.NewSynthetic(uint64(time.Now().UnixNano()))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// resolveWalletKey returns the operator's private key hex from config:
// either inline or decrypted from an encrypted keyfile.
func resolveWalletKey(w config.WalletConfig) (string, error) {
	if w.PrivateKey != "" {
		return strings.TrimPrefix(w.PrivateKey, "0x"), nil
	}
	if w.EncryptedKeyPath == "" {
		return "", fmt.Errorf("no private_key or encrypted_key_path configured")
	}
	data, err := os.ReadFile(w.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("read encrypted key: %w", err)
	}
	key, err := crypto.DecryptKey(data, w.KeyPassword)
	if err != nil {
		return "", fmt.Errorf("decrypt key: %w", err)
	}
	return strings.TrimPrefix(key, "0x"), nil
}

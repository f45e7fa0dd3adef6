package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest quote per symbol.
type PriceCache interface {
	SetQuote(ctx context.Context, q PriceQuote) error
	GetQuote(ctx context.Context, symbol string) (PriceQuote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]PriceQuote, error)
}

// LockManager provides distributed locking, used to guard settlement
// submission across instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter enforces a sliding-window request limit per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// EventBus publishes dashboard-facing events (agent logs, price updates,
// session lifecycle changes) to named channels.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// BusMessage is one message delivered by an EventBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// BlobWriter stores archived artifacts (settlement reports) in object
// storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// BlobReader retrieves archived artifacts from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

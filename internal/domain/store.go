package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SessionStore persists session records so settled history survives restarts
// and the one-active-session-per-user invariant holds across instances.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	Update(ctx context.Context, s Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	GetActiveByUser(ctx context.Context, userAddress string) (Session, error)
	MarkSettled(ctx context.Context, id string, txHash string, settledAt time.Time) error
	ListByUser(ctx context.Context, userAddress string, opts ListOpts) ([]Session, error)
}

// TradeStore persists per-trade history for a session. The settlement
// summary's agent/manual split is derived from these rows.
type TradeStore interface {
	Create(ctx context.Context, t TradeRecord) error
	CloseTrade(ctx context.Context, id string, exitPrice, realizedPnL float64, closedAt time.Time) error
	ListBySession(ctx context.Context, sessionID string) ([]TradeRecord, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

// Create inserts a new trade row at open time.
func (s *TradeStore) Create(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, session_id, market_id, side, size_units,
			entry_price, agent_owned, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.SessionID, t.MarketID, string(t.Side), t.SizeUnits,
		t.EntryPrice, t.AgentOwned, t.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// CloseTrade records the exit of an open trade.
func (s *TradeStore) CloseTrade(ctx context.Context, id string, exitPrice, realizedPnL float64, closedAt time.Time) error {
	const query = `
		UPDATE trades SET exit_price = $2, realized_pnl = $3, closed_at = $4
		WHERE id = $1 AND closed_at IS NULL`
	tag, err := s.pool.Exec(ctx, query, id, exitPrice, realizedPnL, closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: close trade %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListBySession returns a session's trades in open order.
func (s *TradeStore) ListBySession(ctx context.Context, sessionID string) ([]domain.TradeRecord, error) {
	const query = `
		SELECT id, session_id, market_id, side, size_units, entry_price,
		       exit_price, realized_pnl, agent_owned, opened_at, closed_at
		FROM trades WHERE session_id = $1 ORDER BY opened_at`
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t    domain.TradeRecord
			side string
		)
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.MarketID, &side, &t.SizeUnits, &t.EntryPrice,
			&t.ExitPrice, &t.RealizedPnL, &t.AgentOwned, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

// CountBySession returns the number of trades recorded for a session.
func (s *TradeStore) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE session_id = $1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return count, nil
}

// ListClosedBefore returns all trades closed strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *TradeStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	const query = `
		SELECT id, session_id, market_id, side, size_units, entry_price,
		       exit_price, realized_pnl, agent_owned, opened_at, closed_at
		FROM trades WHERE closed_at IS NOT NULL AND closed_at < $1
		ORDER BY closed_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t    domain.TradeRecord
			side string
		)
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.MarketID, &side, &t.SizeUnits, &t.EntryPrice,
			&t.ExitPrice, &t.RealizedPnL, &t.AgentOwned, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed trade: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed trades rows: %w", err)
	}
	return trades, nil
}

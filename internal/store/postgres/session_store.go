package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// SessionStore implements domain.SessionStore using PostgreSQL. The open
// positions snapshot is stored as JSONB alongside the scalar columns.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

var _ domain.SessionStore = (*SessionStore)(nil)

const sessionColumns = `id, user_address, balance_units, initial_deposit_units,
	start_time, duration_seconds, risk_level, positions, agent_enabled,
	chain_id, settlement_pending, nonce, settled_at, settlement_tx`

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, sess domain.Session) error {
	positions, err := json.Marshal(sess.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}

	const query = `
		INSERT INTO sessions (
			id, user_address, balance_units, initial_deposit_units,
			start_time, duration_seconds, risk_level, positions,
			agent_enabled, chain_id, settlement_pending, nonce
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.pool.Exec(ctx, query,
		sess.ID, sess.UserAddress, sess.Balance, sess.InitialDeposit,
		sess.StartTime, int64(sess.Duration.Seconds()), sess.RiskLevel, positions,
		sess.AgentEnabled, sess.ChainID, sess.SettlementPending, int64(sess.Nonce),
	)
	if err != nil {
		return fmt.Errorf("postgres: create session %s: %w", sess.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing session.
func (s *SessionStore) Update(ctx context.Context, sess domain.Session) error {
	positions, err := json.Marshal(sess.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}

	const query = `
		UPDATE sessions SET
			balance_units = $2,
			positions = $3,
			agent_enabled = $4,
			settlement_pending = $5,
			nonce = $6,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		sess.ID, sess.Balance, positions, sess.AgentEnabled,
		sess.SettlementPending, int64(sess.Nonce),
	)
	if err != nil {
		return fmt.Errorf("postgres: update session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update session %s: %w", sess.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a session by its id.
func (s *SessionStore) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return s.scanSession(s.pool.QueryRow(ctx, query, id))
}

// GetActiveByUser returns the user's unsettled session, or ErrNotFound.
func (s *SessionStore) GetActiveByUser(ctx context.Context, userAddress string) (domain.Session, error) {
	const query = `SELECT ` + sessionColumns + `
		FROM sessions WHERE user_address = $1 AND settled_at IS NULL`
	return s.scanSession(s.pool.QueryRow(ctx, query, userAddress))
}

// MarkSettled records the terminal settlement state of a session.
func (s *SessionStore) MarkSettled(ctx context.Context, id string, txHash string, settledAt time.Time) error {
	const query = `
		UPDATE sessions SET
			settled_at = $2,
			settlement_tx = $3,
			settlement_pending = FALSE,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, settledAt, txHash)
	if err != nil {
		return fmt.Errorf("postgres: mark settled %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark settled %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByUser returns the user's sessions, newest first.
func (s *SessionStore) ListByUser(ctx context.Context, userAddress string, opts domain.ListOpts) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_address = $1`
	args := []any{userAddress}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND start_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY start_time DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list sessions rows: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SessionStore) scanSession(row rowScanner) (domain.Session, error) {
	var (
		sess            domain.Session
		durationSeconds int64
		positionsJSON   []byte
		nonce           int64
		settlementTx    *string
	)
	err := row.Scan(
		&sess.ID, &sess.UserAddress, &sess.Balance, &sess.InitialDeposit,
		&sess.StartTime, &durationSeconds, &sess.RiskLevel, &positionsJSON,
		&sess.AgentEnabled, &sess.ChainID, &sess.SettlementPending, &nonce,
		&sess.SettledAt, &settlementTx,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("postgres: scan session: %w", err)
	}

	sess.Duration = time.Duration(durationSeconds) * time.Second
	sess.Nonce = uint64(nonce)
	if settlementTx != nil {
		sess.SettlementTx = *settlementTx
	}
	if len(positionsJSON) > 0 {
		if err := json.Unmarshal(positionsJSON, &sess.Positions); err != nil {
			return domain.Session{}, fmt.Errorf("postgres: unmarshal positions: %w", err)
		}
	}
	return sess, nil
}

// ListSettledBefore returns all sessions settled strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *SessionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions WHERE settled_at IS NOT NULL AND settled_at < $1
		ORDER BY settled_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled sessions rows: %w", err)
	}
	return sessions, nil
}

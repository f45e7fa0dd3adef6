package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// SettlementNetwork submits a signed final state to the clearing network and
// returns the on-chain transaction hash.
type SettlementNetwork interface {
	Settle(ctx context.Context, data domain.SettlementData) (string, error)
}

// SettlementSigner signs the packed final-state payload.
type SettlementSigner interface {
	SignSettlement(sessionID string, finalBalanceUnits, totalPnLUnits, timestamp int64) (string, error)
}

// SessionSource is the slice of the session manager settlement needs: a
// snapshot of the live session, the settlement-pending flag that blocks
// trading while a settle is in flight, and the ability to drop the session
// once settled.
type SessionSource interface {
	Snapshot() (domain.Session, error)
	BeginSettlement() error
	AbortSettlement()
	Clear()
}

// Manager executes session settlement. Execute is guarded by a distributed
// lock so concurrent triggers (countdown expiry racing a manual settle
// request) submit at most one transaction.
type Manager struct {
	network  SettlementNetwork
	signer   SettlementSigner
	source   SessionSource
	sessions domain.SessionStore
	trades   domain.TradeStore
	locks    domain.LockManager
	archive  domain.BlobWriter
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewManager creates a settlement Manager. The archive and bus may be nil;
// archiving and event publication are then skipped.
func NewManager(
	network SettlementNetwork,
	signer SettlementSigner,
	source SessionSource,
	sessions domain.SessionStore,
	trades domain.TradeStore,
	locks domain.LockManager,
	archive domain.BlobWriter,
	bus domain.EventBus,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		network:  network,
		signer:   signer,
		source:   source,
		sessions: sessions,
		trades:   trades,
		locks:    locks,
		archive:  archive,
		bus:      bus,
		logger:   logger.With(slog.String("component", "settlement")),
	}
}

// Preview computes the settlement summary for the active session without
// submitting anything.
func (m *Manager) Preview(ctx context.Context) (domain.SettlementSummary, error) {
	sess, err := m.source.Snapshot()
	if err != nil {
		return domain.SettlementSummary{}, err
	}
	trades, err := m.tradeHistory(ctx, sess.ID)
	if err != nil {
		return domain.SettlementSummary{}, err
	}
	return BuildSummary(sess, trades), nil
}

// Execute settles the active session: it signs the final state, submits it
// to the network, records the outcome, archives the summary, and drops the
// local session. A second concurrent call returns ErrSettlementPending.
func (m *Manager) Execute(ctx context.Context) (domain.SettlementSummary, error) {
	if m.signer == nil {
		return domain.SettlementSummary{}, fmt.Errorf("settlement: %w", domain.ErrNotInitialized)
	}
	sess, err := m.source.Snapshot()
	if err != nil {
		return domain.SettlementSummary{}, err
	}

	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, "settle:"+sess.ID, 2*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.SettlementSummary{}, domain.ErrSettlementPending
			}
			return domain.SettlementSummary{}, fmt.Errorf("settlement: acquire lock: %w", err)
		}
		defer unlock()
	}

	// Block trading while the settlement is in flight. ErrSettlementPending
	// here means the expiry path already flipped the flag before handing off.
	if err := m.source.BeginSettlement(); err != nil && !errors.Is(err, domain.ErrSettlementPending) {
		return domain.SettlementSummary{}, err
	}

	trades, err := m.tradeHistory(ctx, sess.ID)
	if err != nil {
		m.source.AbortSettlement()
		return domain.SettlementSummary{}, err
	}
	summary := BuildSummary(sess, trades)

	finalUnits := toUnits(summary.FinalBalance)
	pnlUnits := finalUnits - sess.InitialDeposit
	now := time.Now().UTC()

	sig, err := m.signer.SignSettlement(sess.ID, finalUnits, pnlUnits, now.Unix())
	if err != nil {
		m.source.AbortSettlement()
		return domain.SettlementSummary{}, fmt.Errorf("settlement: sign: %w", err)
	}

	data := domain.SettlementData{
		SessionID:    sess.ID,
		FinalBalance: finalUnits,
		Positions:    sess.Positions,
		TotalPnL:     pnlUnits,
		Signature:    sig,
	}
	txHash, err := m.network.Settle(ctx, data)
	if err != nil {
		m.source.AbortSettlement()
		return domain.SettlementSummary{}, fmt.Errorf("settlement: submit: %w", err)
	}
	summary.TransactionHash = txHash

	if m.sessions != nil {
		if err := m.sessions.MarkSettled(ctx, sess.ID, txHash, now); err != nil {
			// The chain already has the settlement; do not fail the call
			// over a bookkeeping write.
			m.logger.WarnContext(ctx, "mark settled failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	m.archiveSummary(ctx, sess.ID, summary, data)
	m.publish(ctx, sess.ID, summary)
	m.source.Clear()

	m.logger.InfoContext(ctx, "session settled",
		slog.String("session_id", sess.ID),
		slog.String("tx", txHash),
		slog.Float64("final_balance", summary.FinalBalance),
		slog.Float64("pnl", summary.PnL),
	)

	return summary, nil
}

func (m *Manager) tradeHistory(ctx context.Context, sessionID string) ([]domain.TradeRecord, error) {
	if m.trades == nil {
		return nil, nil
	}
	trades, err := m.trades.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("settlement: trade history: %w", err)
	}
	return trades, nil
}

func (m *Manager) archiveSummary(ctx context.Context, sessionID string, summary domain.SettlementSummary, data domain.SettlementData) {
	if m.archive == nil {
		return
	}
	record := struct {
		Summary domain.SettlementSummary `json:"summary"`
		Data    domain.SettlementData    `json:"data"`
	}{summary, data}
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return
	}
	path := fmt.Sprintf("settlements/%s.json", sessionID)
	if err := m.archive.Put(ctx, path, body, "application/json"); err != nil {
		m.logger.WarnContext(ctx, "settlement archive failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) publish(ctx context.Context, sessionID string, summary domain.SettlementSummary) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":      "session_settled",
		"session_id": sessionID,
		"summary":    summary,
	})
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, "session", payload); err != nil {
		m.logger.WarnContext(ctx, "settlement event publish failed",
			slog.String("error", err.Error()),
		)
	}
}

func toUnits(display float64) int64 {
	return int64(math.Round(display * domain.UnitScale))
}

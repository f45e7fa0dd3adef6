package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Event types emitted by the session lifecycle. Operators choose which of
// these reach their channels via the notifications.events config list.
const (
	EventSessionCreated = "session_created"
	EventSessionExpired = "session_expired"
	EventSessionSettled = "session_settled"
)

// SessionCreated notifies that a new trading session was funded and opened.
func (n *Notifier) SessionCreated(ctx context.Context, sess domain.Session) error {
	msg := fmt.Sprintf("Wallet %s deposited %.2f USDC for a %s session on chain %d.",
		shortAddress(sess.UserAddress),
		sess.DepositUSDC(),
		sess.Duration.Round(time.Minute),
		sess.ChainID,
	)
	return n.Notify(ctx, EventSessionCreated, "Session opened", msg)
}

// SessionExpired notifies that a session's countdown reached zero and
// settlement is about to run.
func (n *Notifier) SessionExpired(ctx context.Context, sess domain.Session) error {
	msg := fmt.Sprintf("Session %s for %s expired with %d open position(s). Settlement starting.",
		sess.ID,
		shortAddress(sess.UserAddress),
		len(sess.Positions),
	)
	return n.Notify(ctx, EventSessionExpired, "Session expired", msg)
}

// SessionSettled notifies that a session was settled on-chain, including the
// final P&L summary.
func (n *Notifier) SessionSettled(ctx context.Context, sessionID string, summary domain.SettlementSummary) error {
	msg := fmt.Sprintf(
		"Session %s settled: %.2f -> %.2f USDC (%+.2f, %+.2f%%) over %d trade(s). Gas saved: %s.\nTx: %s",
		sessionID,
		summary.StartingBalance,
		summary.FinalBalance,
		summary.PnL,
		summary.PnLPercent,
		summary.TradesExecuted,
		summary.GasSaved,
		summary.TransactionHash,
	)
	return n.Notify(ctx, EventSessionSettled, "Session settled", msg)
}

// shortAddress abbreviates a wallet address for display: 0x1234...abcd.
func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

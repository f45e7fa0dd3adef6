package settlement

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func sessionWith(balanceUnits int64, positions ...domain.Position) domain.Session {
	return domain.Session{
		ID:             "sess-1",
		UserAddress:    "0xabc",
		Balance:        balanceUnits,
		InitialDeposit: 50_000_000,
		StartTime:      time.Now().UTC().Add(-30 * time.Minute),
		Duration:       30 * time.Minute,
		Positions:      positions,
	}
}

func agentTrade(id string) domain.TradeRecord {
	return domain.TradeRecord{ID: id, SessionID: "sess-1", AgentOwned: true}
}

func manualTrade(id string) domain.TradeRecord {
	return domain.TradeRecord{ID: id, SessionID: "sess-1"}
}

func TestBuildSummaryArithmetic(t *testing.T) {
	// 50 USDC in, 52.47 out across 7 trades.
	sess := sessionWith(52_470_000)
	trades := []domain.TradeRecord{
		agentTrade("t1"), agentTrade("t2"), agentTrade("t3"), agentTrade("t4"), agentTrade("t5"),
		manualTrade("t6"), manualTrade("t7"),
	}

	s := BuildSummary(sess, trades)

	if s.StartingBalance != 50 {
		t.Fatalf("starting balance: %v", s.StartingBalance)
	}
	if s.FinalBalance != 52.47 {
		t.Fatalf("final balance: %v", s.FinalBalance)
	}
	if math.Abs(s.PnL-2.47) > 1e-9 {
		t.Fatalf("pnl: %v", s.PnL)
	}
	if math.Abs(s.PnLPercent-4.94) > 1e-9 {
		t.Fatalf("pnl percent: %v", s.PnLPercent)
	}
	if s.TradesExecuted != 7 || s.AgentTrades != 5 || s.ManualTrades != 2 {
		t.Fatalf("trade split: %d total, %d agent, %d manual",
			s.TradesExecuted, s.AgentTrades, s.ManualTrades)
	}
	if s.GasSaved != "$14.00" {
		t.Fatalf("gas saved: %q", s.GasSaved)
	}
}

func TestBuildSummaryIncludesUnrealized(t *testing.T) {
	sess := sessionWith(50_000_000, domain.Position{ID: "p1", PnL: 1.5})

	s := BuildSummary(sess, nil)
	if s.FinalBalance != 51.5 {
		t.Fatalf("open position P&L should count, got %v", s.FinalBalance)
	}
	if s.GasSaved != "$0.00" {
		t.Fatalf("gas saved with no trades: %q", s.GasSaved)
	}
}

type fakeSource struct {
	sess    domain.Session
	err     error
	pending bool
	cleared bool
}

func (f *fakeSource) Snapshot() (domain.Session, error) { return f.sess, f.err }

func (f *fakeSource) BeginSettlement() error {
	if f.pending {
		return domain.ErrSettlementPending
	}
	f.pending = true
	return nil
}

func (f *fakeSource) AbortSettlement() { f.pending = false }
func (f *fakeSource) Clear()           { f.cleared = true }

type fakeNetwork struct {
	settled []domain.SettlementData
	err     error
}

func (f *fakeNetwork) Settle(_ context.Context, data domain.SettlementData) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.settled = append(f.settled, data)
	return "0xsettletx", nil
}

type fakeSigner struct{}

func (fakeSigner) SignSettlement(string, int64, int64, int64) (string, error) {
	return "0xsettlementsig", nil
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func newTestManager(src *fakeSource, net *fakeNetwork, locks *fakeLocks) *Manager {
	return NewManager(net, fakeSigner{}, src, nil, nil, locks, nil, nil,
		slog.New(slog.DiscardHandler))
}

func TestExecuteSubmitsSignedState(t *testing.T) {
	src := &fakeSource{sess: sessionWith(52_470_000)}
	net := &fakeNetwork{}
	locks := &fakeLocks{}
	m := newTestManager(src, net, locks)

	summary, err := m.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.TransactionHash != "0xsettletx" {
		t.Fatalf("tx hash: %q", summary.TransactionHash)
	}
	if len(net.settled) != 1 {
		t.Fatalf("expected one submission, got %d", len(net.settled))
	}
	data := net.settled[0]
	if data.FinalBalance != 52_470_000 {
		t.Fatalf("final balance units: %d", data.FinalBalance)
	}
	if data.TotalPnL != 2_470_000 {
		t.Fatalf("total pnl units: %d", data.TotalPnL)
	}
	if data.Signature != "0xsettlementsig" {
		t.Fatalf("signature: %q", data.Signature)
	}
	if !src.cleared {
		t.Fatal("session should be cleared after settlement")
	}
	if locks.acquired != 1 || locks.released != 1 {
		t.Fatalf("lock acquire/release: %d/%d", locks.acquired, locks.released)
	}
}

func TestExecuteBlockedByHeldLock(t *testing.T) {
	src := &fakeSource{sess: sessionWith(50_000_000)}
	net := &fakeNetwork{}
	m := newTestManager(src, net, &fakeLocks{held: true})

	_, err := m.Execute(context.Background())
	if !errors.Is(err, domain.ErrSettlementPending) {
		t.Fatalf("expected ErrSettlementPending, got %v", err)
	}
	if len(net.settled) != 0 {
		t.Fatal("no submission while lock is held")
	}
	if src.cleared {
		t.Fatal("session must survive a blocked settlement")
	}
	t.Logf("Correctly blocked: %v", err)
}

func TestExecuteMarksSettlementPending(t *testing.T) {
	src := &fakeSource{sess: sessionWith(50_000_000)}
	m := newTestManager(src, &fakeNetwork{}, &fakeLocks{})

	if _, err := m.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !src.pending {
		t.Fatal("settlement must flip the pending flag before submitting")
	}
}

func TestExecuteToleratesPendingFromExpiry(t *testing.T) {
	// The countdown flips the flag before handing off; Execute must not
	// treat that as a conflict.
	src := &fakeSource{sess: sessionWith(50_000_000), pending: true}
	net := &fakeNetwork{}
	m := newTestManager(src, net, &fakeLocks{})

	if _, err := m.Execute(context.Background()); err != nil {
		t.Fatalf("execute after expiry handoff: %v", err)
	}
	if len(net.settled) != 1 {
		t.Fatalf("expected one submission, got %d", len(net.settled))
	}
}

func TestExecuteKeepsSessionOnNetworkError(t *testing.T) {
	src := &fakeSource{sess: sessionWith(50_000_000)}
	net := &fakeNetwork{err: errors.New("rpc timeout")}
	m := newTestManager(src, net, &fakeLocks{})

	if _, err := m.Execute(context.Background()); err == nil {
		t.Fatal("expected network error to surface")
	}
	if src.cleared {
		t.Fatal("session must not be cleared when submission fails")
	}
	if src.pending {
		t.Fatal("failed submission must clear the pending flag so a retry can run")
	}

	net.err = nil
	if _, err := m.Execute(context.Background()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if len(net.settled) != 1 {
		t.Fatalf("retry should submit once, got %d", len(net.settled))
	}
}

func TestSettlementRoundsNegativeBalances(t *testing.T) {
	// 1 USDC left with -2.50 unrealized: final balance is -1.50.
	src := &fakeSource{sess: sessionWith(1_000_000, domain.Position{ID: "p1", PnL: -2.5})}
	net := &fakeNetwork{}
	m := newTestManager(src, net, &fakeLocks{})

	if _, err := m.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := net.settled[0].FinalBalance; got != -1_500_000 {
		t.Fatalf("final balance units: got %d, want -1500000", got)
	}
}

func TestExecuteWithoutSession(t *testing.T) {
	src := &fakeSource{err: domain.ErrNoSession}
	m := newTestManager(src, &fakeNetwork{}, &fakeLocks{})

	if _, err := m.Execute(context.Background()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestPreviewDoesNotSubmit(t *testing.T) {
	src := &fakeSource{sess: sessionWith(51_000_000)}
	net := &fakeNetwork{}
	m := newTestManager(src, net, &fakeLocks{})

	s, err := m.Preview(context.Background())
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if s.FinalBalance != 51 {
		t.Fatalf("final balance: %v", s.FinalBalance)
	}
	if len(net.settled) != 0 {
		t.Fatal("preview must not submit")
	}
	if src.cleared {
		t.Fatal("preview must not clear the session")
	}
}

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/signal"
	"github.com/oneset-labs/onesetd/internal/strategy"
)

type fakeControl struct {
	mu      sync.Mutex
	sess    domain.Session
	opened  []string
	closed  []string
	openErr error
}

func (f *fakeControl) Snapshot() (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sess
	out.Positions = append([]domain.Position(nil), f.sess.Positions...)
	return out, nil
}

func (f *fakeControl) OpenTrade(_ context.Context, symbol string, side domain.Side, sizeUnits int64, agentOwned bool) (domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return domain.Position{}, f.openErr
	}
	market, err := domain.MarketBySymbol(symbol)
	if err != nil {
		return domain.Position{}, err
	}
	pos := domain.Position{
		ID:         fmt.Sprintf("pos-%d", len(f.opened)),
		Market:     market,
		Side:       side,
		Entry:      100,
		Current:    100,
		SizeUnits:  sizeUnits,
		AgentOwned: agentOwned,
	}
	f.sess.Positions = append([]domain.Position{pos}, f.sess.Positions...)
	f.opened = append(f.opened, symbol)
	return pos, nil
}

func (f *fakeControl) CloseTrade(_ context.Context, positionID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, pos := range f.sess.Positions {
		if pos.ID == positionID {
			f.sess.Positions = append(f.sess.Positions[:i], f.sess.Positions[i+1:]...)
			f.closed = append(f.closed, positionID)
			return pos.PnL, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (f *fakeControl) openedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

func (f *fakeControl) closedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type fixedSource struct {
	sigs []domain.MarketSignal
	err  error
}

func (f *fixedSource) Signals(context.Context, []string) ([]domain.MarketSignal, error) {
	return f.sigs, f.err
}

func bullish(symbol string, strength float64) domain.MarketSignal {
	return domain.MarketSignal{
		Symbol: symbol, Direction: domain.SignalBullish, Strength: strength, RSI: 60, MACD: 1,
	}
}

func testConfig() Config {
	return Config{
		Strategy:           domain.StrategyTrendFollow,
		MaxTrades:          10,
		MaxDrawdownPercent: 5,
		TradeSizeUnits:     500_000,
		TickInterval:       time.Hour,
		TakeProfitPercent:  3,
		StopLossPercent:    2,
	}
}

func newTestAgent(t *testing.T, cfg Config, source signal.Source, ctl SessionControl) *Agent {
	t.Helper()
	a, err := New(cfg, strategy.NewRegistry(), source, ctl, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return a
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = "martingale"
	_, err := New(cfg, strategy.NewRegistry(), &fixedSource{}, &fakeControl{}, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestTickOpensOnStrongSignal(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.8)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 1 || opened[0] != "BTC" {
		t.Fatalf("expected one BTC entry, got %v", opened)
	}
	logs := a.Logs()
	if len(logs) == 0 || logs[0].Kind != domain.LogTrade {
		t.Fatalf("expected a trade log entry, got %+v", logs)
	}
}

func TestTickOpensEachQualifyingSignal(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9), bullish("ETH", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 2 {
		t.Fatalf("every qualifying signal should open, got %v", opened)
	}
}

func TestTickReentersHeldSymbol(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	for i := 0; i < 3; i++ {
		if err := a.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if opened := ctl.openedSymbols(); len(opened) != 3 {
		t.Fatalf("holding a symbol does not block further entries, got %v", opened)
	}
}

func TestTickLogsNonTradingSignals(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.3)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 0 {
		t.Fatalf("weak signal must not trade, got %v", opened)
	}
	logs := a.Logs()
	if len(logs) != 1 || logs[0].Kind != domain.LogInfo {
		t.Fatalf("expected one info entry, got %+v", logs)
	}
	if logs[0].Message != "BTC: BULLISH signal (strength: 30%)" {
		t.Fatalf("signal log message: %q", logs[0].Message)
	}
}

func TestMaxTradesPausesWithSingleWarning(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	cfg := testConfig()
	cfg.MaxTrades = 1
	a := newTestAgent(t, cfg, src, ctl)

	for i := 0; i < 5; i++ {
		if err := a.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if opened := ctl.openedSymbols(); len(opened) != 1 {
		t.Fatalf("expected trading capped at 1, got %d entries", len(opened))
	}

	warnings := 0
	for _, l := range a.Logs() {
		if l.Kind == domain.LogWarning && strings.Contains(l.Message, "max trades") {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("paused warning should be logged once, got %d", warnings)
	}
	t.Logf("Correctly blocked further entries after max trades")
}

func TestCloseCountsTowardTradeLimit(t *testing.T) {
	btc, _ := domain.MarketBySymbol("BTC")
	ctl := &fakeControl{sess: domain.Session{
		Balance: 50_000_000, InitialDeposit: 50_000_000,
		Positions: []domain.Position{{
			ID: "winner", Market: btc, Side: domain.SideLong,
			Entry: 100, Current: 103.5, PnL: 3.5, PnLPercent: 3.5,
			AgentOwned: true,
		}},
	}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("ETH", 0.9)}}
	cfg := testConfig()
	cfg.MaxTrades = 1
	a := newTestAgent(t, cfg, src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if closed := ctl.closedIDs(); len(closed) != 1 {
		t.Fatalf("take profit should close the position, got %v", closed)
	}
	if got := a.Stats().TradesExecuted; got != 1 {
		t.Fatalf("a close counts as an executed trade, got %d", got)
	}
	if opened := ctl.openedSymbols(); len(opened) != 0 {
		t.Fatalf("the close spent the trade budget, got entries %v", opened)
	}
}

func TestStartResetsRunCounters(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := a.Stats().TradesExecuted; got != 1 {
		t.Fatalf("expected one executed trade before restart, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !a.Start(ctx) {
		t.Fatal("Start should report started")
	}
	defer a.Stop()

	if got := a.Stats().TradesExecuted; got != 0 {
		t.Fatalf("Start must reset the trade counter, got %d", got)
	}
	logs := a.Logs()
	if len(logs) != 2 {
		t.Fatalf("Start must clear the activity log, got %d entries", len(logs))
	}
	found := false
	for _, l := range logs {
		if strings.Contains(l.Message, "agent started with") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a start banner in the log, got %+v", logs)
	}
}

func TestDrawdownGateBlocksEntries(t *testing.T) {
	// 10% drawdown on a 50 USDC deposit: balance down to 45.
	ctl := &fakeControl{sess: domain.Session{Balance: 45_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 0 {
		t.Fatalf("drawdown gate should block entries, got %v", opened)
	}

	found := false
	for _, l := range a.Logs() {
		if l.Kind == domain.LogWarning && strings.Contains(l.Message, "drawdown") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a drawdown warning in the log")
	}
}

func TestDrawdownAtLimitStillTrades(t *testing.T) {
	// Exactly 5% drawdown against a 5% limit: the gate is strict.
	ctl := &fakeControl{sess: domain.Session{Balance: 47_500_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 1 {
		t.Fatalf("drawdown exactly at the limit must not pause, got %v", opened)
	}
}

func TestExitStrictThresholds(t *testing.T) {
	mk := func(id string, pct float64) domain.Position {
		btc, _ := domain.MarketBySymbol("BTC")
		return domain.Position{
			ID: id, Market: btc, Side: domain.SideLong,
			Entry: 100, Current: 100 + pct, PnL: pct, PnLPercent: pct,
			AgentOwned: true,
		}
	}
	ctl := &fakeControl{sess: domain.Session{
		Balance: 50_000_000, InitialDeposit: 50_000_000,
		Positions: []domain.Position{
			mk("tp-on-line", 3.00),
			mk("tp-crossed", 3.01),
			mk("sl-on-line", -2.00),
			mk("sl-crossed", -2.01),
		},
	}}
	src := &fixedSource{}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	closed := ctl.closedIDs()
	if len(closed) != 2 {
		t.Fatalf("expected only crossed positions closed, got %v", closed)
	}
	for _, id := range closed {
		if id == "tp-on-line" || id == "sl-on-line" {
			t.Fatalf("position exactly on the line must stay open: %s", id)
		}
	}
}

func TestExitClosesManualPositions(t *testing.T) {
	btc, _ := domain.MarketBySymbol("BTC")
	ctl := &fakeControl{sess: domain.Session{
		Balance: 50_000_000, InitialDeposit: 50_000_000,
		Positions: []domain.Position{{
			ID: "manual-1", Market: btc, Side: domain.SideLong,
			Entry: 100, Current: 110, PnL: 10, PnLPercent: 10,
		}},
	}}
	a := newTestAgent(t, testConfig(), &fixedSource{}, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	closed := ctl.closedIDs()
	if len(closed) != 1 || closed[0] != "manual-1" {
		t.Fatalf("manual position past take profit must close too, got %v", closed)
	}
	if got := a.Stats().TradesExecuted; got != 1 {
		t.Fatalf("the close should count as executed, got %d", got)
	}
}

func TestTickSkipsWhileSettling(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{
		Balance: 50_000_000, InitialDeposit: 50_000_000, SettlementPending: true,
	}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	if err := a.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if opened := ctl.openedSymbols(); len(opened) != 0 {
		t.Fatalf("no entries during settlement, got %v", opened)
	}
}

func TestLogRingCapsAtHundredNewestFirst(t *testing.T) {
	ring := newLogRing(maxLogEntries)
	for i := 0; i < 150; i++ {
		ring.add(domain.LogInfo, fmt.Sprintf("entry %d", i), nil)
	}
	entries := ring.entries()
	if len(entries) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(entries))
	}
	if entries[0].Message != "entry 149" {
		t.Fatalf("newest entry should be first, got %q", entries[0].Message)
	}
	if entries[99].Message != "entry 50" {
		t.Fatalf("oldest kept entry should be entry 50, got %q", entries[99].Message)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	a := newTestAgent(t, testConfig(), &fixedSource{}, ctl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !a.Start(ctx) {
		t.Fatal("first Start should report started")
	}
	if a.Start(ctx) {
		t.Fatal("second Start should be a no-op")
	}
	if !a.Running() {
		t.Fatal("agent should report running")
	}
	if !a.Stop() {
		t.Fatal("first Stop should report stopped")
	}
	if a.Stop() {
		t.Fatal("second Stop should be a no-op")
	}
}

func TestStopLogsFinalPnL(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 52_000_000, InitialDeposit: 50_000_000}}
	a := newTestAgent(t, testConfig(), &fixedSource{}, ctl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	a.Stop()

	logs := a.Logs()
	if len(logs) == 0 {
		t.Fatal("expected log entries after stop")
	}
	if logs[0].Message != "agent stopped. final P&L: +2.00" {
		t.Fatalf("stop banner: %q", logs[0].Message)
	}
}

func TestStatsConcurrentWithTicks(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	src := &fixedSource{sigs: []domain.MarketSignal{bullish("BTC", 0.9)}}
	a := newTestAgent(t, testConfig(), src, ctl)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = a.tick(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = a.Stats()
			_ = a.Logs()
		}
	}()
	wg.Wait()
}

type panicSource struct{}

func (panicSource) Signals(context.Context, []string) ([]domain.MarketSignal, error) {
	panic("boom")
}

func TestTickRecoversFromPanic(t *testing.T) {
	ctl := &fakeControl{sess: domain.Session{Balance: 50_000_000, InitialDeposit: 50_000_000}}
	a := newTestAgent(t, testConfig(), panicSource{}, ctl)

	err := a.tick(context.Background())
	if err == nil {
		t.Fatal("recovered panic should surface as an error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry the panic value, got %v", err)
	}
}

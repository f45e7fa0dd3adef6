// Package agent runs the rule-based trading agent: every tick it reads
// market signals, applies risk gates, asks the configured strategy for an
// entry, and manages exits on open positions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/sched"
	"github.com/oneset-labs/onesetd/internal/signal"
	"github.com/oneset-labs/onesetd/internal/strategy"
)

// SessionControl is the slice of the session manager the agent needs.
type SessionControl interface {
	Snapshot() (domain.Session, error)
	OpenTrade(ctx context.Context, symbol string, side domain.Side, sizeUnits int64, agentOwned bool) (domain.Position, error)
	CloseTrade(ctx context.Context, positionID string) (float64, error)
}

// Config carries one agent run's parameters.
type Config struct {
	Strategy           domain.AgentStrategy
	MaxTrades          int
	MaxDrawdownPercent float64
	TradeSizeUnits     int64
	TickInterval       time.Duration
	TakeProfitPercent  float64
	StopLossPercent    float64
}

// Agent is the autonomous trader for one session. Start and Stop are
// idempotent; the tick loop otherwise runs unattended until the session
// ends. All trading flows through the session manager, so the agent never
// touches balances or positions directly.
type Agent struct {
	cfg      Config
	strat    strategy.Strategy
	source   signal.Source
	sessions SessionControl
	logger   *slog.Logger
	loop     *sched.Loop
	ring     *logRing

	mu             sync.Mutex // guards the run counters below
	tradesExecuted int
	pausedWarned   bool
}

// New creates an Agent. The strategy name must be registered; the returned
// error carries the unknown name otherwise.
func New(cfg Config, reg *strategy.Registry, source signal.Source, sessions SessionControl, logger *slog.Logger) (*Agent, error) {
	strat, err := reg.Get(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	a := &Agent{
		cfg:      cfg,
		strat:    strat,
		source:   source,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "agent"), slog.String("strategy", string(cfg.Strategy))),
		ring:     newLogRing(maxLogEntries),
	}
	a.loop = sched.NewLoop("agent", cfg.TickInterval, a.tick, a.logger)
	return a, nil
}

// Start begins ticking. Each start is a fresh run: the activity log and the
// trade counter are reset. It reports whether this call started the agent.
func (a *Agent) Start(ctx context.Context) bool {
	started := a.loop.Start(ctx)
	if started {
		a.mu.Lock()
		a.tradesExecuted = 0
		a.pausedWarned = false
		a.mu.Unlock()
		a.ring.reset()
		a.ring.add(domain.LogInfo, fmt.Sprintf("agent started with %s strategy", a.cfg.Strategy), nil)
		a.ring.add(domain.LogInfo,
			fmt.Sprintf("risk limits: max %d trades, %.0f%% max drawdown", a.cfg.MaxTrades, a.cfg.MaxDrawdownPercent), nil)
		a.logger.InfoContext(ctx, "agent started")
	}
	return started
}

// Stop halts the tick loop and waits for an in-flight tick to finish. It
// reports whether this call stopped the agent.
func (a *Agent) Stop() bool {
	stopped := a.loop.Stop()
	if stopped {
		msg := "agent stopped"
		if sess, err := a.sessions.Snapshot(); err == nil {
			msg = fmt.Sprintf("agent stopped. final P&L: %+.2f", totalPnL(sess))
		}
		a.ring.add(domain.LogInfo, msg, nil)
		a.logger.Info(msg)
	}
	return stopped
}

// Running reports whether the tick loop is active.
func (a *Agent) Running() bool { return a.loop.Running() }

// Logs returns the activity log, most recent first, capped at 100 entries.
func (a *Agent) Logs() []domain.AgentLog { return a.ring.entries() }

// Stats returns the counters for this run.
func (a *Agent) Stats() domain.AgentStats {
	a.mu.Lock()
	executed := a.tradesExecuted
	a.mu.Unlock()
	stats := domain.AgentStats{
		TradesExecuted: executed,
		Running:        a.Running(),
	}
	if sess, err := a.sessions.Snapshot(); err == nil {
		stats.TotalPnL = totalPnL(sess)
	}
	return stats
}

// tick is one agent cycle. A panic or error in a tick is logged and absorbed
// so a single bad cycle cannot kill the run.
func (a *Agent) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent: tick panic: %v", r)
			a.ring.add(domain.LogWarning, fmt.Sprintf("tick recovered: %v", r), nil)
		}
	}()

	sess, err := a.sessions.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return nil
		}
		return fmt.Errorf("agent: session snapshot: %w", err)
	}
	if sess.SettlementPending {
		return nil
	}

	a.manageExits(ctx, sess)

	sigs, err := a.source.Signals(ctx, domain.MarketSymbols())
	if err != nil {
		return fmt.Errorf("agent: signals: %w", err)
	}

	for _, sig := range sigs {
		if !a.riskAllowsEntry(sess) {
			continue
		}
		d := a.strat.Evaluate(sig)
		if d == nil {
			a.ring.add(domain.LogInfo,
				fmt.Sprintf("%s: %s signal (strength: %.0f%%)",
					sig.Symbol, strings.ToUpper(string(sig.Direction)), sig.Strength*100), nil)
			continue
		}
		pos, err := a.sessions.OpenTrade(ctx, d.Symbol, d.Side, a.cfg.TradeSizeUnits, true)
		if err != nil {
			a.ring.add(domain.LogWarning, fmt.Sprintf("entry rejected for %s: %v", d.Symbol, err), nil)
			a.logger.WarnContext(ctx, "agent entry rejected",
				slog.String("symbol", d.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.mu.Lock()
		a.tradesExecuted++
		a.pausedWarned = false
		a.mu.Unlock()
		a.ring.add(domain.LogTrade,
			fmt.Sprintf("opened %s %s @ %.2f (%s)", d.Side, d.Symbol, pos.Entry, d.Reason), nil)
		a.logger.InfoContext(ctx, "agent opened position",
			slog.String("symbol", d.Symbol),
			slog.String("side", string(d.Side)),
			slog.Float64("entry", pos.Entry),
			slog.String("reason", d.Reason),
		)
	}
	return nil
}

// manageExits closes positions that crossed the take-profit or stop-loss
// lines, manual and agent-opened alike. Thresholds are strict: exactly on
// the line stays open. Every close counts against the trade limit.
func (a *Agent) manageExits(ctx context.Context, sess domain.Session) {
	for _, pos := range sess.Positions {
		var label string
		switch {
		case pos.PnLPercent > a.cfg.TakeProfitPercent:
			label = "take profit"
		case pos.PnLPercent < -a.cfg.StopLossPercent:
			label = "stop loss"
		default:
			continue
		}
		pnl, err := a.sessions.CloseTrade(ctx, pos.ID)
		if err != nil {
			a.ring.add(domain.LogWarning, fmt.Sprintf("exit failed for %s: %v", pos.Market.Symbol, err), nil)
			continue
		}
		a.mu.Lock()
		a.tradesExecuted++
		a.mu.Unlock()
		a.ring.add(domain.LogTrade,
			fmt.Sprintf("%s: closed %s %s at %+.2f%%", label, pos.Side, pos.Market.Symbol, pos.PnLPercent),
			&pnl)
		a.logger.InfoContext(ctx, "agent closed position",
			slog.String("symbol", pos.Market.Symbol),
			slog.String("trigger", label),
			slog.Float64("pnl", pnl),
		)
	}
}

// riskAllowsEntry applies the trade-count and drawdown gates. When a gate
// trips, one warning is logged; the warning is not repeated on subsequent
// ticks until the agent trades again.
func (a *Agent) riskAllowsEntry(sess domain.Session) bool {
	a.mu.Lock()
	executed := a.tradesExecuted
	a.mu.Unlock()
	if a.cfg.MaxTrades > 0 && executed >= a.cfg.MaxTrades {
		a.warnPaused(fmt.Sprintf("paused: max trades reached (%d)", a.cfg.MaxTrades))
		return false
	}
	if dd := drawdownPercent(sess); a.cfg.MaxDrawdownPercent > 0 && dd > a.cfg.MaxDrawdownPercent {
		a.warnPaused(fmt.Sprintf("paused: drawdown %.2f%% exceeds limit %.2f%%", dd, a.cfg.MaxDrawdownPercent))
		return false
	}
	a.mu.Lock()
	a.pausedWarned = false
	a.mu.Unlock()
	return true
}

func (a *Agent) warnPaused(msg string) {
	a.mu.Lock()
	warned := a.pausedWarned
	a.pausedWarned = true
	a.mu.Unlock()
	if warned {
		return
	}
	a.ring.add(domain.LogWarning, msg, nil)
	a.logger.Warn(msg)
}

// totalPnL is realized plus unrealized P&L in display units.
func totalPnL(sess domain.Session) float64 {
	total := float64(sess.Balance-sess.InitialDeposit) / domain.UnitScale
	for _, pos := range sess.Positions {
		total += pos.PnL
	}
	return total
}

// drawdownPercent measures how far total P&L has gone negative, as a
// percentage of the initial deposit. Positive P&L means zero drawdown.
func drawdownPercent(sess domain.Session) float64 {
	if sess.InitialDeposit == 0 {
		return 0
	}
	pnl := totalPnL(sess)
	if pnl >= 0 {
		return 0
	}
	deposit := float64(sess.InitialDeposit) / domain.UnitScale
	return -pnl / deposit * 100
}

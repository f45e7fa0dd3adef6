package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneset-labs/onesetd/internal/agent"
	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/platform/oneinch"
	"github.com/oneset-labs/onesetd/internal/sched"
	"github.com/oneset-labs/onesetd/internal/server"
	"github.com/oneset-labs/onesetd/internal/server/handler"
	"github.com/oneset-labs/onesetd/internal/server/ws"
	"github.com/oneset-labs/onesetd/internal/session"
	"github.com/oneset-labs/onesetd/internal/settlement"
	"github.com/oneset-labs/onesetd/internal/strategy"
)

// archiveRetention is how long settled sessions and closed trades stay in
// postgres before the archive sweep moves them to object storage.
const archiveRetention = 30 * 24 * time.Hour

// core bundles the trading stack built on top of wired infrastructure: the
// session manager, the settlement manager that consumes it, and the agent.
type core struct {
	sessions *session.Manager
	settle   *settlement.Manager
	agent    *agent.Agent
}

func (a *App) buildCore(deps *Dependencies) (*core, error) {
	sessCfg := session.Config{
		MinDepositUnits:   a.cfg.Session.MinDepositUnits,
		DefaultDuration:   a.cfg.Session.DefaultDuration.Duration,
		CountdownInterval: a.cfg.Session.CountdownInterval.Duration,
		HomeChainID:       a.cfg.Yellow.ChainID,
	}

	// Wrap the signer only when present so the managers see a true nil in
	// server mode and reject trading instead of panicking on a typed nil.
	var intentSigner session.IntentSigner
	var settleSigner settlement.SettlementSigner
	if deps.Signer != nil {
		intentSigner = deps.Signer
		settleSigner = deps.Signer
	}

	mgr := session.NewManager(
		sessCfg,
		deps.Yellow,
		deps.Bridge,
		intentSigner,
		deps.Feed,
		deps.SessionStore,
		deps.TradeStore,
		deps.AuditStore,
		deps.Bus,
		a.logger,
	)

	settle := settlement.NewManager(
		deps.Yellow,
		settleSigner,
		mgr,
		deps.SessionStore,
		deps.TradeStore,
		deps.LockManager,
		deps.BlobWriter,
		deps.Bus,
		a.logger,
	)

	mgr.SetExpiryHandler(func(ctx context.Context, sessionID string) {
		if _, err := settle.Execute(ctx); err != nil {
			a.logger.ErrorContext(ctx, "settlement after expiry failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	})

	agCfg := agent.Config{
		Strategy:           domain.AgentStrategy(a.cfg.Agent.Strategy),
		MaxTrades:          a.cfg.Agent.MaxTrades,
		MaxDrawdownPercent: a.cfg.Agent.MaxDrawdown,
		TradeSizeUnits:     a.cfg.Agent.TradeSizeUnits,
		TickInterval:       a.cfg.Agent.TickInterval.Duration,
		TakeProfitPercent:  a.cfg.Agent.TakeProfitPct,
		StopLossPercent:    a.cfg.Agent.StopLossPct,
	}
	ag, err := agent.New(agCfg, strategy.NewRegistry(), deps.Signals, mgr, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: build agent: %w", err)
	}

	return &core{sessions: mgr, settle: settle, agent: ag}, nil
}

// swapQuoter adapts the 1inch client to the market handler's interface.
type swapQuoter struct {
	dex *oneinch.Client
}

func (s swapQuoter) QuoteDstAmount(ctx context.Context, src, dst, amount string) (string, error) {
	q, err := s.dex.GetQuote(ctx, src, dst, amount)
	if err != nil {
		return "", err
	}
	return q.DstAmount, nil
}

// ServerMode runs the HTTP/WebSocket API backed by postgres and redis but
// without an operator signer: sessions and history are readable and prices
// refresh, while trading endpoints report the daemon as not initialized.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.serve(ctx, deps, false)
}

// FullMode runs everything: the API, live price refresh, the trading agent,
// expiry-triggered settlement, notifications, and the archive sweep into
// object storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.serve(ctx, deps, true)
}

func (a *App) serve(ctx context.Context, deps *Dependencies, full bool) error {
	c, err := a.buildCore(deps)
	if err != nil {
		return err
	}

	runner := sched.NewRunner(a.logger)
	runner.Add("price_refresh", a.cfg.Prices.RefreshInterval.Duration, func(ctx context.Context) error {
		if err := deps.Feed.Refresh(ctx); err != nil {
			return err
		}
		if err := c.sessions.RefreshPrices(ctx); err != nil && !errors.Is(err, domain.ErrNoSession) {
			a.logger.WarnContext(ctx, "position mark-to-market failed",
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	if full && deps.Archiver != nil {
		runner.Add("archive_sweep", 24*time.Hour, func(ctx context.Context) error {
			return a.archiveTick(ctx, deps)
		})
	}

	hub := ws.NewHub(deps.Bus, a.logger)

	var swapper handler.SwapQuoter
	if deps.Dex != nil {
		swapper = swapQuoter{dex: deps.Dex}
	}
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Markets:    handler.NewMarketHandler(deps.Feed, swapper, a.logger),
		Sessions:   handler.NewSessionHandler(c.sessions, deps.Yellow, deps.SessionStore, deps.TradeStore, deps.BlobReader, a.logger),
		Trades:     handler.NewTradeHandler(c.sessions, a.logger),
		Agent:      handler.NewAgentHandler(c.agent, c.sessions, a.logger),
		Settlement: handler.NewSettlementHandler(c.settle, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	if deps.Notifier != nil {
		g.Go(func() error { return a.notifyBridge(ctx, deps) })
	}
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// MonitorMode is the lightweight operational mode: it keeps the price cache
// warm and forwards session lifecycle events from the bus to the configured
// notification channels. No postgres, no signer, no HTTP surface.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	runner := sched.NewRunner(a.logger)
	runner.Add("price_refresh", a.cfg.Prices.RefreshInterval.Duration, deps.Feed.Refresh)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	if deps.Notifier != nil {
		g.Go(func() error { return a.notifyBridge(ctx, deps) })
	}
	return g.Wait()
}

// sessionEvent mirrors the payload shape published on the "session" channel.
type sessionEvent struct {
	Event     string                    `json:"event"`
	SessionID string                    `json:"session_id"`
	Summary   *domain.SettlementSummary `json:"summary"`
}

// notifyBridge forwards session lifecycle events to the notifier. When a
// session store is wired it enriches created/expired events with the full
// session record; otherwise it sends the slim bus payload.
func (a *App) notifyBridge(ctx context.Context, deps *Dependencies) error {
	msgs, cancel, err := deps.Bus.Subscribe(ctx, "session")
	if err != nil {
		return fmt.Errorf("app: subscribe session events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			a.handleSessionEvent(ctx, deps, msg.Payload)
		}
	}
}

func (a *App) handleSessionEvent(ctx context.Context, deps *Dependencies, payload []byte) {
	var evt sessionEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		a.logger.WarnContext(ctx, "malformed session event", slog.String("error", err.Error()))
		return
	}

	var err error
	switch evt.Event {
	case "session_created":
		if sess, ok := a.lookupSession(ctx, deps, evt.SessionID); ok {
			err = deps.Notifier.SessionCreated(ctx, sess)
		} else {
			err = deps.Notifier.Notify(ctx, evt.Event, "Session opened",
				fmt.Sprintf("Session %s opened.", evt.SessionID))
		}
	case "session_expired":
		if sess, ok := a.lookupSession(ctx, deps, evt.SessionID); ok {
			err = deps.Notifier.SessionExpired(ctx, sess)
		} else {
			err = deps.Notifier.Notify(ctx, evt.Event, "Session expired",
				fmt.Sprintf("Session %s expired. Settlement starting.", evt.SessionID))
		}
	case "session_settled":
		if evt.Summary != nil {
			err = deps.Notifier.SessionSettled(ctx, evt.SessionID, *evt.Summary)
		}
	}
	if err != nil {
		a.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("event", evt.Event),
			slog.String("error", err.Error()),
		)
	}
}

func (a *App) lookupSession(ctx context.Context, deps *Dependencies, id string) (domain.Session, bool) {
	if deps.SessionStore == nil || id == "" {
		return domain.Session{}, false
	}
	sess, err := deps.SessionStore.GetByID(ctx, id)
	if err != nil {
		return domain.Session{}, false
	}
	return sess, true
}

// archiveTick moves settled sessions and closed trades older than the
// retention window out of postgres into object storage.
func (a *App) archiveTick(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().Add(-archiveRetention)

	sessions, err := deps.Archiver.ArchiveSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive sessions: %w", err)
	}
	trades, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive trades: %w", err)
	}
	if sessions > 0 || trades > 0 {
		a.logger.InfoContext(ctx, "archive sweep complete",
			slog.Int64("sessions", sessions),
			slog.Int64("trades", trades),
		)
	}
	return nil
}

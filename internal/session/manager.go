package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/oracle"
	"github.com/oneset-labs/onesetd/internal/sched"
)

// ChannelNetwork is the state-channel collaborator the manager talks to.
type ChannelNetwork interface {
	Initialize(ctx context.Context, userAddress string) error
	CreateSession(ctx context.Context, userAddress string, amountUnits int64, duration time.Duration) (domain.SessionReceipt, error)
	SubmitTradeIntent(ctx context.Context, intent domain.TradeIntent) (domain.TradeAck, error)
	GetSessionBalance(ctx context.Context, sessionID string) (int64, error)
}

// BridgeRouter finds and executes cross-chain transfer routes when the
// user's funds originate on a different chain than the session.
type BridgeRouter interface {
	BestRoute(ctx context.Context, fromChain, toChain int, fromToken, toToken, amount, userAddress string) (*domain.BridgeRoute, error)
	ExecuteSwap(ctx context.Context, route *domain.BridgeRoute) (string, error)
}

// IntentSigner signs trade intents on behalf of the operator wallet.
type IntentSigner interface {
	SignIntent(intent domain.TradeIntent) (string, error)
}

// PriceSource supplies current quotes; implemented by the oracle client,
// fronted by the redis price cache in production wiring.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (domain.PriceQuote, error)
	Quotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error)
}

// Canonical USDC addresses used when planning bridge routes.
const (
	usdcMainnet  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	usdcArbitrum = "0xff970a61a04b1ca14834a43f5de4533ebddb5f86"
)

// Config carries the manager's tunables.
type Config struct {
	MinDepositUnits   int64
	DefaultDuration   time.Duration
	CountdownInterval time.Duration
	HomeChainID       int
}

// CreateRequest is the input to CreateSession.
type CreateRequest struct {
	UserAddress  string
	DepositUnits int64
	Duration     time.Duration
	RiskLevel    int
	EnableAgent  bool
	ChainID      int // chain the user's funds are on
}

// Manager sequences the session lifecycle: connect/configure/create, live
// trading, countdown, and the handoff into settlement. It is a thin
// coordinator; each step calls one collaborator or mutates State.
type Manager struct {
	cfg      Config
	network  ChannelNetwork
	bridge   BridgeRouter
	signer   IntentSigner
	prices   PriceSource
	sessions domain.SessionStore
	trades   domain.TradeStore
	audit    domain.AuditStore
	bus      domain.EventBus
	logger   *slog.Logger

	mu        sync.Mutex // guards current
	current   *State
	countdown *sched.Loop
	onExpiry  func(ctx context.Context, sessionID string)
}

// NewManager creates a Manager. The expiry handler is wired separately via
// SetExpiryHandler because settlement is constructed after the manager.
func NewManager(
	cfg Config,
	network ChannelNetwork,
	bridge BridgeRouter,
	signer IntentSigner,
	prices PriceSource,
	sessions domain.SessionStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *Manager {
	m := &Manager{
		cfg:      cfg,
		network:  network,
		bridge:   bridge,
		signer:   signer,
		prices:   prices,
		sessions: sessions,
		trades:   trades,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "session_manager")),
	}
	m.countdown = sched.NewLoop("session_countdown", cfg.CountdownInterval, m.countdownTick, m.logger)
	return m
}

// SetExpiryHandler registers the callback invoked exactly once when the
// countdown reaches zero. It must be set before the first session is created.
func (m *Manager) SetExpiryHandler(fn func(ctx context.Context, sessionID string)) {
	m.onExpiry = fn
}

// Current returns the active session state, or ErrNoSession.
func (m *Manager) Current() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, domain.ErrNoSession
	}
	return m.current, nil
}

// Snapshot returns a copy of the active session, or ErrNoSession.
func (m *Manager) Snapshot() (domain.Session, error) {
	st, err := m.Current()
	if err != nil {
		return domain.Session{}, err
	}
	return st.Snapshot(), nil
}

// CreateSession runs the configure/create step: validates the deposit,
// enforces one active session per user, initializes the network client,
// bridges funds when needed, registers the session remotely, and installs
// the local State.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (domain.Session, error) {
	if req.DepositUnits < m.cfg.MinDepositUnits {
		return domain.Session{}, fmt.Errorf("session: deposit %d below minimum %d: %w",
			req.DepositUnits, m.cfg.MinDepositUnits, domain.ErrInvalidIntent)
	}
	if req.Duration <= 0 {
		req.Duration = m.cfg.DefaultDuration
	}

	// At most one active session per user.
	m.mu.Lock()
	active := m.current != nil
	m.mu.Unlock()
	if active {
		return domain.Session{}, domain.ErrSessionActive
	}
	if m.sessions != nil {
		if _, err := m.sessions.GetActiveByUser(ctx, req.UserAddress); err == nil {
			return domain.Session{}, domain.ErrSessionActive
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, fmt.Errorf("session: check active: %w", err)
		}
	}

	if err := m.network.Initialize(ctx, req.UserAddress); err != nil {
		return domain.Session{}, fmt.Errorf("session: network init: %w", err)
	}

	// Bridge the deposit home when the user's funds live on another chain.
	// A missing or failing route is a warning, not an abort: the deposit may
	// already be available on the home chain.
	if req.ChainID != 0 && req.ChainID != m.cfg.HomeChainID {
		m.bridgeDeposit(ctx, req)
	}

	receipt, err := m.network.CreateSession(ctx, req.UserAddress, req.DepositUnits, req.Duration)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: remote create: %w", err)
	}

	sess := domain.Session{
		ID:             receipt.SessionID,
		UserAddress:    req.UserAddress,
		Balance:        req.DepositUnits,
		InitialDeposit: req.DepositUnits,
		StartTime:      time.Now().UTC(),
		Duration:       req.Duration,
		RiskLevel:      req.RiskLevel,
		AgentEnabled:   req.EnableAgent,
		ChainID:        m.cfg.HomeChainID,
	}

	if m.sessions != nil {
		if err := m.sessions.Create(ctx, sess); err != nil {
			return domain.Session{}, fmt.Errorf("session: persist: %w", err)
		}
	}

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return domain.Session{}, domain.ErrSessionActive
	}
	m.current = NewState(sess)
	m.mu.Unlock()
	m.countdown.Start(ctx)

	m.auditLog(ctx, "session_created", map[string]any{
		"session_id": sess.ID,
		"user":       sess.UserAddress,
		"deposit":    sess.InitialDeposit,
		"duration":   sess.Duration.String(),
		"tx":         receipt.TxHash,
	})
	m.publish(ctx, "session", map[string]any{
		"event":      "session_created",
		"session_id": sess.ID,
		"tx":         receipt.TxHash,
	})

	m.logger.InfoContext(ctx, "session created",
		slog.String("session_id", sess.ID),
		slog.String("user", sess.UserAddress),
		slog.Int64("deposit_units", sess.InitialDeposit),
		slog.Duration("duration", sess.Duration),
	)

	return sess, nil
}

func (m *Manager) bridgeDeposit(ctx context.Context, req CreateRequest) {
	fromToken := usdcMainnet
	if req.ChainID == 42161 {
		fromToken = usdcArbitrum
	}
	route, err := m.bridge.BestRoute(ctx,
		req.ChainID, m.cfg.HomeChainID,
		fromToken, usdcMainnet,
		fmt.Sprintf("%d", req.DepositUnits), req.UserAddress,
	)
	if err != nil || route == nil {
		m.logger.WarnContext(ctx, "no bridge route for deposit",
			slog.Int("from_chain", req.ChainID),
			slog.Any("error", err),
		)
		return
	}
	tx, err := m.bridge.ExecuteSwap(ctx, route)
	if err != nil {
		m.logger.WarnContext(ctx, "bridge execution failed, deposit may already be home",
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.InfoContext(ctx, "deposit bridged",
		slog.String("tx", tx),
		slog.String("tool", route.Tool),
	)
}

// ValidateSession checks the remote balance of the active session.
func (m *Manager) ValidateSession(ctx context.Context) (bool, error) {
	st, err := m.Current()
	if err != nil {
		return false, err
	}
	bal, err := m.network.GetSessionBalance(ctx, st.ID())
	if err != nil {
		return false, fmt.Errorf("session: remote balance: %w", err)
	}
	return bal > 0, nil
}

// OpenTrade submits a trade intent for the active session and, on success,
// opens the corresponding position at the current market price.
func (m *Manager) OpenTrade(ctx context.Context, symbol string, side domain.Side, sizeUnits int64, agentOwned bool) (domain.Position, error) {
	if m.signer == nil {
		return domain.Position{}, fmt.Errorf("session: open trade: %w", domain.ErrNotInitialized)
	}
	st, err := m.Current()
	if err != nil {
		return domain.Position{}, err
	}
	if st.SettlementPending() {
		return domain.Position{}, domain.ErrSettlementPending
	}
	if st.Expired(time.Now().UTC()) {
		return domain.Position{}, domain.ErrSessionExpired
	}
	market, err := domain.MarketBySymbol(symbol)
	if err != nil {
		return domain.Position{}, err
	}
	if !side.Valid() {
		return domain.Position{}, fmt.Errorf("session: side %q: %w", side, domain.ErrInvalidIntent)
	}
	if sizeUnits <= 0 {
		return domain.Position{}, fmt.Errorf("session: size %d: %w", sizeUnits, domain.ErrInvalidIntent)
	}

	quote, err := m.prices.Quote(ctx, symbol)
	if err != nil {
		return domain.Position{}, fmt.Errorf("session: quote %s: %w", symbol, err)
	}
	if quote.Price <= 0 {
		return domain.Position{}, fmt.Errorf("session: %s: %w", symbol, domain.ErrZeroEntryPrice)
	}

	snap := st.Snapshot()
	intent := domain.TradeIntent{
		SessionID: snap.ID,
		Market:    market,
		Side:      side,
		SizeUnits: sizeUnits,
		Timestamp: time.Now().Unix(),
		Nonce:     st.NextNonce(),
	}
	sig, err := m.signer.SignIntent(intent)
	if err != nil {
		return domain.Position{}, fmt.Errorf("session: sign intent: %w", err)
	}
	intent.Signature = sig

	ack, err := m.network.SubmitTradeIntent(ctx, intent)
	if err != nil {
		return domain.Position{}, fmt.Errorf("session: submit intent: %w", err)
	}
	if !ack.Success {
		return domain.Position{}, fmt.Errorf("session: intent rejected by network: %w", domain.ErrInvalidIntent)
	}

	pos := domain.Position{
		ID:         uuid.New().String(),
		Market:     market,
		Side:       side,
		Entry:      quote.Price,
		Current:    quote.Price,
		CreatedAt:  time.Now().UTC(),
		SizeUnits:  sizeUnits,
		AgentOwned: agentOwned,
	}
	if err := st.OpenPosition(pos); err != nil {
		return domain.Position{}, err
	}

	if m.trades != nil {
		rec := domain.TradeRecord{
			ID:         pos.ID,
			SessionID:  snap.ID,
			MarketID:   market.ID,
			Side:       side,
			SizeUnits:  sizeUnits,
			EntryPrice: quote.Price,
			AgentOwned: agentOwned,
			OpenedAt:   pos.CreatedAt,
		}
		if err := m.trades.Create(ctx, rec); err != nil {
			m.logger.WarnContext(ctx, "trade history write failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	m.persist(ctx, st)

	m.publish(ctx, "positions", map[string]any{
		"event":       "position_opened",
		"position_id": pos.ID,
		"symbol":      symbol,
		"side":        string(side),
		"entry":       pos.Entry,
		"agent":       agentOwned,
	})

	m.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("entry", pos.Entry),
		slog.Bool("agent", agentOwned),
	)

	return pos, nil
}

// CloseTrade closes an open position at its last marked price, settles the
// realized P&L into the balance, and records the closure. It returns the
// realized P&L in display units.
func (m *Manager) CloseTrade(ctx context.Context, positionID string) (float64, error) {
	st, err := m.Current()
	if err != nil {
		return 0, err
	}

	pos, err := st.Position(positionID)
	if err != nil {
		return 0, err
	}
	pnl, err := oracle.CalculatePnL(pos.Entry, pos.Current, pos.Side)
	if err != nil {
		return 0, fmt.Errorf("session: close %s: %w", positionID, err)
	}

	if _, err := st.ClosePosition(positionID); err != nil {
		return 0, err
	}
	st.ApplyRealized(int64(math.Round(pnl.Abs * domain.UnitScale)))

	now := time.Now().UTC()
	if m.trades != nil {
		if err := m.trades.CloseTrade(ctx, positionID, pos.Current, pnl.Abs, now); err != nil {
			m.logger.WarnContext(ctx, "trade history close failed",
				slog.String("position_id", positionID),
				slog.String("error", err.Error()),
			)
		}
	}
	m.persist(ctx, st)

	m.publish(ctx, "positions", map[string]any{
		"event":       "position_closed",
		"position_id": positionID,
		"pnl":         pnl.Abs,
		"pnl_percent": pnl.Percent,
	})

	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", positionID),
		slog.Float64("pnl", pnl.Abs),
		slog.Float64("pnl_percent", pnl.Percent),
	)

	return pnl.Abs, nil
}

// RefreshPrices is the 5-second price loop body: it pulls fresh quotes for
// every tracked symbol and re-marks open positions.
func (m *Manager) RefreshPrices(ctx context.Context) error {
	quotes, err := m.prices.Quotes(ctx, domain.MarketSymbols())
	if err != nil {
		return fmt.Errorf("session: refresh prices: %w", err)
	}

	m.mu.Lock()
	st := m.current
	m.mu.Unlock()
	if st != nil {
		for sym, q := range quotes {
			st.MarkPrice(sym, q.Price)
		}
	}

	m.publish(ctx, "prices", quotes)
	return nil
}

// SetAgentEnabled toggles the agent flag on the active session.
func (m *Manager) SetAgentEnabled(ctx context.Context, enabled bool) error {
	st, err := m.Current()
	if err != nil {
		return err
	}
	st.SetAgentEnabled(enabled)
	m.persist(ctx, st)
	return nil
}

// BeginSettlement flips the settlement-pending flag on the active session,
// blocking further trades. ErrSettlementPending means the flag was already
// set, which the expiry path does before handing off.
func (m *Manager) BeginSettlement() error {
	st, err := m.Current()
	if err != nil {
		return err
	}
	return st.BeginSettlement()
}

// AbortSettlement clears the settlement-pending flag so a failed settlement
// can be retried.
func (m *Manager) AbortSettlement() {
	st, err := m.Current()
	if err != nil {
		return
	}
	st.AbortSettlement()
}

// Clear drops the local session state after a successful settlement and
// stops the countdown. The terminal store update is the settlement
// manager's responsibility.
func (m *Manager) Clear() {
	m.countdown.Stop()
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// countdownTick fires every second while a session is active. When the
// countdown reaches zero it transitions into settlement exactly once: the
// settlement-pending flag flips before the handler runs, so a tick that
// fires again cannot re-enter.
func (m *Manager) countdownTick(ctx context.Context) error {
	m.mu.Lock()
	st := m.current
	m.mu.Unlock()
	if st == nil {
		return nil
	}
	now := time.Now().UTC()
	if !st.Expired(now) {
		return nil
	}
	if err := st.BeginSettlement(); err != nil {
		// Already pending: expiry was handled.
		return nil
	}

	m.logger.InfoContext(ctx, "session expired, triggering settlement",
		slog.String("session_id", st.ID()),
	)
	m.publish(ctx, "session", map[string]any{
		"event":      "session_expired",
		"session_id": st.ID(),
	})

	if m.onExpiry != nil {
		m.onExpiry(ctx, st.ID())
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, st *State) {
	if m.sessions == nil {
		return
	}
	if err := m.sessions.Update(ctx, st.Snapshot()); err != nil {
		m.logger.WarnContext(ctx, "session persist failed",
			slog.String("session_id", st.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) publish(ctx context.Context, channel string, payload any) {
	if m.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, channel, data); err != nil {
		m.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/session"
)

// SessionService defines what the session handler requires from the session
// lifecycle layer.
type SessionService interface {
	CreateSession(ctx context.Context, req session.CreateRequest) (domain.Session, error)
	Snapshot() (domain.Session, error)
	ValidateSession(ctx context.Context) (bool, error)
}

// BalanceSource reads the channel-side balance for a session.
type BalanceSource interface {
	GetSessionBalance(ctx context.Context, sessionID string) (int64, error)
}

// SessionHistoryStore lists past sessions for a wallet.
type SessionHistoryStore interface {
	ListByUser(ctx context.Context, userAddress string, opts domain.ListOpts) ([]domain.Session, error)
}

// TradeHistoryStore lists the trade history of a session.
type TradeHistoryStore interface {
	ListBySession(ctx context.Context, sessionID string) ([]domain.TradeRecord, error)
}

// ReportReader fetches archived settlement reports from object storage.
// May be nil when no object store is configured.
type ReportReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// SessionHandler serves session lifecycle endpoints.
type SessionHandler struct {
	sessions SessionService
	balances BalanceSource
	history  SessionHistoryStore
	trades   TradeHistoryStore
	reports  ReportReader
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. history, trades, and reports
// may be nil when the backing store is not configured.
func NewSessionHandler(
	sessions SessionService,
	balances BalanceSource,
	history SessionHistoryStore,
	trades TradeHistoryStore,
	reports ReportReader,
	logger *slog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		balances: balances,
		history:  history,
		trades:   trades,
		reports:  reports,
		logger:   logger,
	}
}

// createSessionRequest is the JSON body for session creation. Deposit is in
// USDC display units; duration is in minutes.
type createSessionRequest struct {
	UserAddress     string  `json:"userAddress"`
	Deposit         float64 `json:"deposit"`
	DurationMinutes int     `json:"durationMinutes"`
	RiskLevel       int     `json:"riskLevel"`
	EnableAgent     bool    `json:"enableAgent"`
	ChainID         int     `json:"chainId"`
}

// CreateSession starts a new trading session from an on-chain deposit.
// POST /api/session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	addr := strings.TrimSpace(req.UserAddress)
	if addr == "" {
		writeError(w, http.StatusBadRequest, "userAddress is required")
		return
	}
	if req.Deposit <= 0 {
		writeError(w, http.StatusBadRequest, "deposit must be positive")
		return
	}

	sess, err := h.sessions.CreateSession(r.Context(), session.CreateRequest{
		UserAddress:  addr,
		DepositUnits: int64(math.Round(req.Deposit * domain.UnitScale)),
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		RiskLevel:    req.RiskLevel,
		EnableAgent:  req.EnableAgent,
		ChainID:      req.ChainID,
	})
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create session failed",
				slog.String("user", addr),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to create session")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// GetSession returns the current in-memory session state.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			writeError(w, http.StatusNotFound, "no active session")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GetBalance returns the channel-side balance for the active session,
// alongside the locally tracked balance.
// GET /api/session/balance
func (h *SessionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Snapshot()
	if err != nil {
		writeError(w, statusForError(err), "no active session")
		return
	}

	channelUnits, err := h.balances.GetSessionBalance(r.Context(), sess.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: channel balance failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch channel balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":      sess.ID,
		"balance":        sess.BalanceUSDC(),
		"channelBalance": float64(channelUnits) / domain.UnitScale,
	})
}

// ListSessions returns past sessions for a wallet.
// GET /api/sessions?wallet=0x...&limit=50&offset=0
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "session history not configured")
		return
	}

	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	sessions, err := h.history.ListByUser(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list sessions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ListTrades returns the trade history of the active session.
// GET /api/session/trades
func (h *SessionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusNotImplemented, "trade history not configured")
		return
	}

	sess, err := h.sessions.Snapshot()
	if err != nil {
		writeError(w, statusForError(err), "no active session")
		return
	}

	trades, err := h.trades.ListBySession(r.Context(), sess.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// GetReport serves the archived settlement report for a settled session.
// GET /api/session/{id}/report
func (h *SessionHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusNotImplemented, "settlement archive not configured")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	data, err := h.reports.Get(r.Context(), "settlements/"+id+".json")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "settlement report not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: fetch report failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

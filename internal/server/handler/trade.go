package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// TradeService defines what the trade handler requires from the session
// layer.
type TradeService interface {
	OpenTrade(ctx context.Context, symbol string, side domain.Side, sizeUnits int64, agentOwned bool) (domain.Position, error)
	CloseTrade(ctx context.Context, positionID string) (float64, error)
}

// TradeHandler serves manual trade endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// openTradeRequest is the JSON body for opening a position. Size is in USDC
// display units.
type openTradeRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Size   float64 `json:"size"`
}

// OpenTrade opens a simulated position backed by a signed trade intent.
// POST /api/trade/open
func (h *TradeHandler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	side := domain.Side(strings.ToLower(strings.TrimSpace(req.Side)))
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be long or short")
		return
	}
	if req.Size <= 0 {
		writeError(w, http.StatusBadRequest, "size must be positive")
		return
	}

	pos, err := h.trades.OpenTrade(r.Context(), symbol, side,
		int64(math.Round(req.Size*domain.UnitScale)), false)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: open trade failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to open trade")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// closeTradeRequest is the JSON body for closing a position.
type closeTradeRequest struct {
	PositionID string `json:"positionId"`
}

// CloseTrade closes an open position and realizes its P&L.
// POST /api/trade/close
func (h *TradeHandler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	var req closeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PositionID == "" {
		writeError(w, http.StatusBadRequest, "positionId is required")
		return
	}

	pnl, err := h.trades.CloseTrade(r.Context(), req.PositionID)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: close trade failed",
				slog.String("position_id", req.PositionID),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to close trade")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positionId":  req.PositionID,
		"realizedPnl": pnl,
	})
}

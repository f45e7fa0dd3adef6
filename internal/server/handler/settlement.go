package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// SettlementService defines what the settlement handler requires from the
// settlement layer.
type SettlementService interface {
	Preview(ctx context.Context) (domain.SettlementSummary, error)
	Execute(ctx context.Context) (domain.SettlementSummary, error)
}

// SettlementHandler serves settlement preview and execution endpoints.
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		logger:     logger,
	}
}

// Preview computes the settlement summary without submitting on-chain.
// GET /api/settlement/preview
func (h *SettlementHandler) Preview(w http.ResponseWriter, r *http.Request) {
	summary, err := h.settlement.Preview(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Execute signs the final session state and settles it on-chain.
// POST /api/settlement/execute
func (h *SettlementHandler) Execute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.settlement.Execute(r.Context())
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: settlement failed",
				slog.String("error", err.Error()),
			)
			writeError(w, status, "settlement failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

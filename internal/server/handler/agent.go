package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// AgentControl defines what the agent handler requires from the trading
// agent.
type AgentControl interface {
	Start(ctx context.Context) bool
	Stop() bool
	Running() bool
	Logs() []domain.AgentLog
	Stats() domain.AgentStats
}

// AgentFlagService persists the agent-enabled flag on the active session.
type AgentFlagService interface {
	SetAgentEnabled(ctx context.Context, enabled bool) error
}

// AgentHandler serves agent control and observability endpoints.
type AgentHandler struct {
	agent    AgentControl
	sessions AgentFlagService
	logger   *slog.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(agent AgentControl, sessions AgentFlagService, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		agent:    agent,
		sessions: sessions,
		logger:   logger,
	}
}

// Start enables the trading agent for the active session.
// POST /api/agent/start
func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SetAgentEnabled(r.Context(), true); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	started := h.agent.Start(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"running": true,
		"started": started, // false means it was already running
	})
}

// Stop disables the trading agent. Open agent positions remain open.
// POST /api/agent/stop
func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SetAgentEnabled(r.Context(), false); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	stopped := h.agent.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"running": false,
		"stopped": stopped,
	})
}

// Status returns the agent's run state and aggregate statistics.
// GET /api/agent/status
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Stats())
}

// Logs returns the agent's activity log, newest first.
// GET /api/agent/logs
func (h *AgentHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logs := h.agent.Logs()
	if logs == nil {
		logs = []domain.AgentLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

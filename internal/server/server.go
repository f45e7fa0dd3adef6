package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/server/handler"
	"github.com/oneset-labs/onesetd/internal/server/middleware"
	"github.com/oneset-labs/onesetd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Sessions   *handler.SessionHandler
	Trades     *handler.TradeHandler
	Agent      *handler.AgentHandler
	Settlement *handler.SettlementHandler
}

// Server is the HTTP + WebSocket API server for the trading dashboard.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limiting, auth, logging, CORS) applied. limiter
// may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market and price endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/swap/quote", handlers.Markets.GetSwapQuote)

	// Session lifecycle endpoints.
	mux.HandleFunc("POST /api/session", handlers.Sessions.CreateSession)
	mux.HandleFunc("GET /api/session", handlers.Sessions.GetSession)
	mux.HandleFunc("GET /api/session/balance", handlers.Sessions.GetBalance)
	mux.HandleFunc("GET /api/session/trades", handlers.Sessions.ListTrades)
	mux.HandleFunc("GET /api/session/{id}/report", handlers.Sessions.GetReport)
	mux.HandleFunc("GET /api/sessions", handlers.Sessions.ListSessions)

	// Trade endpoints.
	mux.HandleFunc("POST /api/trade/open", handlers.Trades.OpenTrade)
	mux.HandleFunc("POST /api/trade/close", handlers.Trades.CloseTrade)

	// Agent control endpoints.
	mux.HandleFunc("POST /api/agent/start", handlers.Agent.Start)
	mux.HandleFunc("POST /api/agent/stop", handlers.Agent.Stop)
	mux.HandleFunc("GET /api/agent/status", handlers.Agent.Status)
	mux.HandleFunc("GET /api/agent/logs", handlers.Agent.Logs)

	// Settlement endpoints.
	mux.HandleFunc("GET /api/settlement/preview", handlers.Settlement.Preview)
	mux.HandleFunc("POST /api/settlement/execute", handlers.Settlement.Execute)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// QuoteService defines what the market handler requires from the price
// layer. It is declared locally so the handler package does not depend on
// the concrete oracle or cache implementation.
type QuoteService interface {
	Quotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error)
}

// SwapQuoter previews a DEX token swap: how much dst token the given amount
// of src token buys. Used by the deposit flow in the dashboard.
type SwapQuoter interface {
	QuoteDstAmount(ctx context.Context, src, dst, amount string) (string, error)
}

// MarketHandler serves the fixed market list, current prices, and swap
// quotes.
type MarketHandler struct {
	quotes  QuoteService
	swapper SwapQuoter
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. swapper may be nil when no DEX
// aggregator is configured.
func NewMarketHandler(quotes QuoteService, swapper SwapQuoter, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		quotes:  quotes,
		swapper: swapper,
		logger:  logger,
	}
}

// listMarketsResponse wraps the market list endpoint output.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
}

// ListMarkets returns the fixed set of tradable markets in symbol order.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: domain.AllMarkets()})
}

// GetPrices returns the latest quote for every tracked symbol.
// GET /api/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.quotes.Quotes(r.Context(), domain.MarketSymbols())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": quotes})
}

// GetSwapQuote previews the output amount of a DEX swap.
// GET /api/swap/quote?src=0x...&dst=0x...&amount=1000000
func (h *MarketHandler) GetSwapQuote(w http.ResponseWriter, r *http.Request) {
	if h.swapper == nil {
		writeError(w, http.StatusNotImplemented, "swap quotes not configured")
		return
	}

	q := r.URL.Query()
	src, dst, amount := q.Get("src"), q.Get("dst"), q.Get("amount")
	if src == "" || dst == "" || amount == "" {
		writeError(w, http.StatusBadRequest, "src, dst, and amount query parameters required")
		return
	}

	dstAmount, err := h.swapper.QuoteDstAmount(r.Context(), src, dst, amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: swap quote failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch swap quote")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"src":       src,
		"dst":       dst,
		"amount":    amount,
		"dstAmount": dstAmount,
	})
}

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/httputil"
)

// coingeckoIDs maps market symbols to CoinGecko asset identifiers.
var coingeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
	"ARB": "arbitrum",
}

// CoinGeckoClient fetches spot prices and 24h change from the CoinGecko
// simple-price API.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	logger     *slog.Logger
}

// NewCoinGeckoClient creates a price feed client. baseURL is the API root,
// e.g. "https://api.coingecko.com/api/v3".
func NewCoinGeckoClient(baseURL string, timeout time.Duration, logger *slog.Logger) *CoinGeckoClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// FetchPrice returns the current quote for a single symbol. Unknown symbols
// fail fast with domain.ErrUnknownMarket.
func (c *CoinGeckoClient) FetchPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	quotes, err := c.FetchMultiplePrices(ctx, []string{symbol})
	if err != nil {
		return domain.PriceQuote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle: no quote returned for %s: %w", symbol, domain.ErrNotFound)
	}
	return q, nil
}

// FetchMultiplePrices returns quotes for the given symbols in one request.
func (c *CoinGeckoClient) FetchMultiplePrices(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := coingeckoIDs[sym]
		if !ok {
			return nil, fmt.Errorf("oracle: %s: %w", sym, domain.ErrUnknownMarket)
		}
		ids = append(ids, id)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	endpoint := c.baseURL + "/simple/price?" + params.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, c.logger, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle: price feed returned status %d", resp.StatusCode)
	}

	var raw map[string]struct {
		USD       float64 `json:"usd"`
		USDChange float64 `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("oracle: decode prices: %w", err)
	}

	now := time.Now().UTC()
	quotes := make(map[string]domain.PriceQuote, len(symbols))
	for _, sym := range symbols {
		data, ok := raw[coingeckoIDs[sym]]
		if !ok {
			continue
		}
		if data.USD <= 0 {
			return nil, fmt.Errorf("oracle: invalid price %g for %s", data.USD, sym)
		}
		quotes[sym] = domain.PriceQuote{
			Symbol:    sym,
			Price:     data.USD,
			Change24h: data.USDChange,
			At:        now,
		}
	}

	return quotes, nil
}

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Feed fronts the CoinGecko client with the redis price cache and fans
// fetched quotes out to registered observers (the indicator tracker, the
// session mark-to-market refresh). It implements the Quote/Quotes interface
// the session manager and HTTP handlers consume.
type Feed struct {
	client *CoinGeckoClient
	cache  domain.PriceCache // may be nil
	logger *slog.Logger

	mu        sync.RWMutex
	observers []func(domain.PriceQuote)
}

// NewFeed creates a Feed. cache may be nil, in which case every Quote call
// hits the upstream API.
func NewFeed(client *CoinGeckoClient, cache domain.PriceCache, logger *slog.Logger) *Feed {
	return &Feed{
		client: client,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// AddObserver registers a callback invoked for every quote fetched by
// Refresh. Observers must not block.
func (f *Feed) AddObserver(fn func(domain.PriceQuote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Refresh fetches fresh quotes for all tracked symbols, stores them in the
// cache, and notifies observers. Intended to run on the price refresh loop.
func (f *Feed) Refresh(ctx context.Context) error {
	quotes, err := f.client.FetchMultiplePrices(ctx, domain.MarketSymbols())
	if err != nil {
		return fmt.Errorf("oracle: refresh prices: %w", err)
	}

	f.mu.RLock()
	observers := f.observers
	f.mu.RUnlock()

	for _, q := range quotes {
		if f.cache != nil {
			if err := f.cache.SetQuote(ctx, q); err != nil {
				f.logger.WarnContext(ctx, "failed to cache quote",
					slog.String("symbol", q.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
		for _, fn := range observers {
			fn(q)
		}
	}
	return nil
}

// Quote returns the latest quote for a symbol, preferring the cache and
// falling back to a direct fetch on a miss.
func (f *Feed) Quote(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	if f.cache != nil {
		q, err := f.cache.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
	}
	return f.client.FetchPrice(ctx, symbol)
}

// Quotes returns the latest quotes for the given symbols. Cache misses are
// filled with a single upstream fetch covering all missing symbols.
func (f *Feed) Quotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	out := make(map[string]domain.PriceQuote, len(symbols))

	var missing []string
	if f.cache != nil {
		cached, err := f.cache.GetQuotes(ctx, symbols)
		if err == nil {
			for _, s := range symbols {
				if q, ok := cached[s]; ok {
					out[s] = q
				} else {
					missing = append(missing, s)
				}
			}
		} else {
			missing = symbols
		}
	} else {
		missing = symbols
	}

	if len(missing) > 0 {
		fetched, err := f.client.FetchMultiplePrices(ctx, missing)
		if err != nil {
			if len(out) > 0 {
				// Serve what the cache had; stale beats empty.
				f.logger.WarnContext(ctx, "partial quote fetch failed",
					slog.String("error", err.Error()),
				)
				return out, nil
			}
			return nil, err
		}
		for s, q := range fetched {
			out[s] = q
		}
	}

	return out, nil
}

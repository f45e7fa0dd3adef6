package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Quoter supplies current quotes for a set of symbols.
type Quoter interface {
	Quotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error)
}

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// Tracker derives market signals from live price history. On every Signals
// call it pulls fresh quotes, appends them to a per-symbol sliding window,
// and computes RSI and MACD from the window. Until enough history has
// accumulated indicators fall back to neutral values.
type Tracker struct {
	quoter     Quoter
	windowSize time.Duration

	mu      sync.Mutex
	history map[string][]PricePoint
}

// NewTracker creates a Tracker. The window should comfortably cover the MACD
// slow period at the agent's tick interval; points older than the window are
// discarded on every observation.
func NewTracker(quoter Quoter, windowSize time.Duration) *Tracker {
	return &Tracker{
		quoter:     quoter,
		windowSize: windowSize,
		history:    make(map[string][]PricePoint),
	}
}

// Observe records a price without fetching. The price-refresh loop feeds
// observations in between agent ticks so indicator windows fill faster.
func (t *Tracker) Observe(symbol string, price float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.track(symbol, price, ts)
}

// Signals fetches quotes, updates history, and computes one signal per symbol.
func (t *Tracker) Signals(ctx context.Context, symbols []string) ([]domain.MarketSignal, error) {
	quotes, err := t.quoter.Quotes(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("signal: fetch quotes: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	out := make([]domain.MarketSignal, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		t.track(sym, q.Price, q.At)

		prices := make([]float64, len(t.history[sym]))
		for i, p := range t.history[sym] {
			prices[i] = p.Price
		}

		rsi := RSI(prices, rsiPeriod)
		macd := MACD(prices)

		dir := domain.SignalNeutral
		switch {
		case macd > 0 && rsi > 50:
			dir = domain.SignalBullish
		case macd < 0 && rsi < 50:
			dir = domain.SignalBearish
		}

		out = append(out, domain.MarketSignal{
			Symbol:    sym,
			Direction: dir,
			Strength:  strengthFrom(rsi, q.Change24h),
			RSI:       rsi,
			MACD:      macd,
			At:        now,
		})
	}
	return out, nil
}

// History returns a copy of the tracked window for a symbol.
func (t *Tracker) History(symbol string) []PricePoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.history[symbol]
	if len(src) == 0 {
		return nil
	}
	out := make([]PricePoint, len(src))
	copy(out, src)
	return out
}

// strengthFrom maps RSI distance from the midline plus the 24h move into
// [0,1]. A flat market near RSI 50 scores near zero.
func strengthFrom(rsi, change24h float64) float64 {
	s := abs(rsi-50)/50*0.7 + min(abs(change24h)/10, 1)*0.3
	if s > 1 {
		return 1
	}
	return s
}

// track appends a point and trims the window. Caller holds t.mu.
func (t *Tracker) track(symbol string, price float64, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	pts := append(t.history[symbol], PricePoint{Price: price, Time: ts})

	cutoff := ts.Add(-t.windowSize)
	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	t.history[symbol] = pts[i:]
}

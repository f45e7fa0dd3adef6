package signal

import (
	"context"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func TestRSIInsufficientHistoryIsNeutral(t *testing.T) {
	if got := RSI([]float64{100, 101, 102}, 14); got != 50 {
		t.Fatalf("expected neutral 50, got %v", got)
	}
}

func TestRSIAllGainsIsMax(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	if got := RSI(prices, 14); got != 100 {
		t.Fatalf("monotonic rally should give RSI 100, got %v", got)
	}
}

func TestRSIAllLossesIsLow(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 - float64(i)
	}
	got := RSI(prices, 14)
	if got > 1 {
		t.Fatalf("monotonic selloff should give RSI near 0, got %v", got)
	}
}

func TestMACDSignTracksTrend(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}
	if got := MACD(up); got <= 0 {
		t.Fatalf("uptrend should give positive MACD, got %v", got)
	}
	if got := MACD(down); got >= 0 {
		t.Fatalf("downtrend should give negative MACD, got %v", got)
	}
	if got := MACD([]float64{100, 101}); got != 0 {
		t.Fatalf("short history should give zero MACD, got %v", got)
	}
}

func TestSyntheticProducesBoundedSignals(t *testing.T) {
	s := NewSynthetic(42)
	symbols := domain.MarketSymbols()

	for tick := 0; tick < 50; tick++ {
		sigs, err := s.Signals(context.Background(), symbols)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if len(sigs) != len(symbols) {
			t.Fatalf("expected %d signals, got %d", len(symbols), len(sigs))
		}
		for _, sig := range sigs {
			if sig.Strength < 0 || sig.Strength > 1 {
				t.Fatalf("strength out of range: %v", sig.Strength)
			}
			if sig.RSI < 0 || sig.RSI > 100 {
				t.Fatalf("RSI out of range: %v", sig.RSI)
			}
			switch sig.Direction {
			case domain.SignalBullish, domain.SignalBearish, domain.SignalNeutral:
			default:
				t.Fatalf("unknown direction %q", sig.Direction)
			}
		}
	}
}

type stubQuoter struct {
	price float64
}

func (s *stubQuoter) Quotes(_ context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	out := make(map[string]domain.PriceQuote, len(symbols))
	for _, sym := range symbols {
		out[sym] = domain.PriceQuote{Symbol: sym, Price: s.price, At: time.Now().UTC()}
	}
	return out, nil
}

func TestTrackerNeutralUntilWarm(t *testing.T) {
	q := &stubQuoter{price: 100}
	tr := NewTracker(q, time.Hour)

	sigs, err := tr.Signals(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %d", len(sigs))
	}
	if sigs[0].Direction != domain.SignalNeutral {
		t.Fatalf("cold tracker should be neutral, got %s", sigs[0].Direction)
	}
	if sigs[0].RSI != 50 || sigs[0].MACD != 0 {
		t.Fatalf("cold indicators should be neutral, rsi=%v macd=%v", sigs[0].RSI, sigs[0].MACD)
	}
}

func TestTrackerTurnsBullishOnRally(t *testing.T) {
	q := &stubQuoter{price: 100}
	tr := NewTracker(q, time.Hour)

	for i := 0; i < 40; i++ {
		q.price = 100 + float64(i)
		if _, err := tr.Signals(context.Background(), []string{"ETH"}); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	sigs, err := tr.Signals(context.Background(), []string{"ETH"})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if sigs[0].Direction != domain.SignalBullish {
		t.Fatalf("steady rally should read bullish, got %s (rsi=%v macd=%v)",
			sigs[0].Direction, sigs[0].RSI, sigs[0].MACD)
	}
}

func TestTrackerWindowTrims(t *testing.T) {
	q := &stubQuoter{price: 100}
	tr := NewTracker(q, time.Minute)

	old := time.Now().UTC().Add(-time.Hour)
	tr.Observe("SOL", 90, old)
	tr.Observe("SOL", 100, time.Now().UTC())

	hist := tr.History("SOL")
	if len(hist) != 1 {
		t.Fatalf("stale point should be trimmed, history has %d points", len(hist))
	}
	if hist[0].Price != 100 {
		t.Fatalf("kept the wrong point: %v", hist[0].Price)
	}
}

package signal

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Synthetic generates plausible random signals without touching market data.
// Each symbol does a slow random walk in direction bias so consecutive ticks
// correlate, which keeps agent demos from flip-flopping every 5 seconds.
type Synthetic struct {
	mu   sync.Mutex
	bias map[string]float64 // [-1,1], drifts per tick
	rng  *rand.Rand
}

// NewSynthetic creates a Synthetic source. A zero seed uses a random one.
func NewSynthetic(seed uint64) *Synthetic {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Synthetic{
		bias: make(map[string]float64),
		rng:  rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Signals produces one signal per symbol.
func (s *Synthetic) Signals(_ context.Context, symbols []string) ([]domain.MarketSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]domain.MarketSignal, 0, len(symbols))
	for _, sym := range symbols {
		b := s.bias[sym] + (s.rng.Float64()-0.5)*0.4
		if b > 1 {
			b = 1
		} else if b < -1 {
			b = -1
		}
		s.bias[sym] = b

		dir := domain.SignalNeutral
		if b > 0.2 {
			dir = domain.SignalBullish
		} else if b < -0.2 {
			dir = domain.SignalBearish
		}

		strength := abs(b)*0.6 + s.rng.Float64()*0.4
		if strength > 1 {
			strength = 1
		}

		// RSI centered on 50, pushed toward the extremes by the bias.
		rsi := 50 + b*35 + (s.rng.Float64()-0.5)*10
		if rsi < 0 {
			rsi = 0
		} else if rsi > 100 {
			rsi = 100
		}

		out = append(out, domain.MarketSignal{
			Symbol:    sym,
			Direction: dir,
			Strength:  strength,
			RSI:       rsi,
			MACD:      b * (0.5 + s.rng.Float64()),
			At:        now,
		})
	}
	return out, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

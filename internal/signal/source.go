// Package signal produces per-symbol market signals for the trading agent.
// Two sources ship: a synthetic generator for demos and tests, and a tracker
// that derives RSI/MACD from live price history.
package signal

import (
	"context"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Source produces one signal per tracked symbol per agent tick.
type Source interface {
	Signals(ctx context.Context, symbols []string) ([]domain.MarketSignal, error)
}

package strategy

import (
	"fmt"

	"github.com/oneset-labs/onesetd/internal/domain"
)

const trendStrengthThreshold = 0.6

// TrendFollow trades in the direction of the prevailing trend: it goes long
// on a sufficiently strong bullish signal and short on a sufficiently strong
// bearish one. Neutral or weak signals produce no decision.
type TrendFollow struct{}

// NewTrendFollow creates a TrendFollow strategy.
func NewTrendFollow() *TrendFollow { return &TrendFollow{} }

// Name returns the strategy identifier.
func (tf *TrendFollow) Name() domain.AgentStrategy { return domain.StrategyTrendFollow }

// Evaluate returns a long decision for strong bullish signals and a short
// decision for strong bearish ones.
func (tf *TrendFollow) Evaluate(sig domain.MarketSignal) *Decision {
	if sig.Strength <= trendStrengthThreshold {
		return nil
	}
	switch sig.Direction {
	case domain.SignalBullish:
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideLong,
			Reason: fmt.Sprintf("trend follow: bullish strength %.2f", sig.Strength),
		}
	case domain.SignalBearish:
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideShort,
			Reason: fmt.Sprintf("trend follow: bearish strength %.2f", sig.Strength),
		}
	}
	return nil
}

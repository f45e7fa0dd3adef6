package strategy

import (
	"fmt"

	"github.com/oneset-labs/onesetd/internal/domain"
)

const momentumStrengthThreshold = 0.8

// Momentum only acts on very strong signals and requires the signal
// direction and the MACD sign to agree: bullish with positive MACD is a
// long entry, bearish with negative MACD a short one.
type Momentum struct{}

// NewMomentum creates a Momentum strategy.
func NewMomentum() *Momentum { return &Momentum{} }

// Name returns the strategy identifier.
func (mo *Momentum) Name() domain.AgentStrategy { return domain.StrategyMomentum }

// Evaluate enters only when the signal strength clears the momentum
// threshold and the MACD confirms the direction. A neutral signal or a
// MACD that disagrees with it produces no decision.
func (mo *Momentum) Evaluate(sig domain.MarketSignal) *Decision {
	if sig.Strength <= momentumStrengthThreshold {
		return nil
	}
	if sig.Direction == domain.SignalBullish && sig.MACD > 0 {
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideLong,
			Reason: fmt.Sprintf("momentum: strength %.2f, MACD %.4f", sig.Strength, sig.MACD),
		}
	}
	if sig.Direction == domain.SignalBearish && sig.MACD < 0 {
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideShort,
			Reason: fmt.Sprintf("momentum: strength %.2f, MACD %.4f", sig.Strength, sig.MACD),
		}
	}
	return nil
}

package strategy

import (
	"fmt"

	"github.com/oneset-labs/onesetd/internal/domain"
)

const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// MeanReversion bets against extremes: an oversold RSI is a long entry, an
// overbought RSI a short entry. Readings in between produce no decision.
type MeanReversion struct{}

// NewMeanReversion creates a MeanReversion strategy.
func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

// Name returns the strategy identifier.
func (mr *MeanReversion) Name() domain.AgentStrategy { return domain.StrategyMeanReversion }

// Evaluate returns a long decision when RSI is below the oversold line and a
// short decision when it is above the overbought line.
func (mr *MeanReversion) Evaluate(sig domain.MarketSignal) *Decision {
	if sig.RSI < rsiOversold {
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideLong,
			Reason: fmt.Sprintf("mean reversion: RSI %.1f oversold", sig.RSI),
		}
	}
	if sig.RSI > rsiOverbought {
		return &Decision{
			Symbol: sig.Symbol,
			Side:   domain.SideShort,
			Reason: fmt.Sprintf("mean reversion: RSI %.1f overbought", sig.RSI),
		}
	}
	return nil
}

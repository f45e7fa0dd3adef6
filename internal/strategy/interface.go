package strategy

import (
	"github.com/oneset-labs/onesetd/internal/domain"
)

// Decision is a strategy's verdict for one market on one tick. A nil
// Decision means "do nothing".
type Decision struct {
	Symbol string
	Side   domain.Side
	Reason string
}

// Strategy turns a market signal into an optional entry decision. Strategies
// are pure rule evaluators: they hold no positions and perform no I/O, so the
// agent can run them on every tick without coordination.
type Strategy interface {
	Name() domain.AgentStrategy
	Evaluate(sig domain.MarketSignal) *Decision
}

// Package settlement finalizes a session: it closes out the books, signs
// the final state, submits it to the clearing network, and archives the
// outcome.
package settlement

import (
	"fmt"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// gasSavedPerTrade is the display heuristic for off-chain execution savings,
// in USD per trade.
const gasSavedPerTrade = 2.0

// BuildSummary computes the human-readable outcome of a session from its
// final state and trade history. Open positions contribute their unrealized
// P&L to the final balance shown.
func BuildSummary(sess domain.Session, trades []domain.TradeRecord) domain.SettlementSummary {
	starting := float64(sess.InitialDeposit) / domain.UnitScale
	final := float64(sess.Balance) / domain.UnitScale
	for _, pos := range sess.Positions {
		final += pos.PnL
	}

	var agentTrades, manualTrades int
	for _, t := range trades {
		if t.AgentOwned {
			agentTrades++
		} else {
			manualTrades++
		}
	}

	pnl := final - starting
	var pnlPercent float64
	if starting > 0 {
		pnlPercent = pnl / starting * 100
	}

	return domain.SettlementSummary{
		StartingBalance: starting,
		FinalBalance:    final,
		TradesExecuted:  len(trades),
		PnL:             pnl,
		PnLPercent:      pnlPercent,
		AgentTrades:     agentTrades,
		ManualTrades:    manualTrades,
		GasSaved:        fmt.Sprintf("$%.2f", gasSavedPerTrade*float64(len(trades))),
	}
}

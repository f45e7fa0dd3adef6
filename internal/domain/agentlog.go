package domain

import "time"

// LogKind classifies an agent log entry.
type LogKind string

const (
	LogTrade   LogKind = "trade"
	LogInfo    LogKind = "info"
	LogWarning LogKind = "warning"
)

// AgentLog is one entry in the agent's capped, most-recent-first activity
// log. PnL is set only on trade entries that realized a profit or loss.
type AgentLog struct {
	ID        string    `json:"id"`
	Kind      LogKind   `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	PnL       *float64  `json:"pnl,omitempty"`
}

// AgentStrategy identifies one of the built-in agent strategies.
type AgentStrategy string

const (
	StrategyTrendFollow   AgentStrategy = "trend_follow"
	StrategyMeanReversion AgentStrategy = "mean_reversion"
	StrategyMomentum      AgentStrategy = "momentum"
)

// Valid reports whether s names a built-in strategy.
func (s AgentStrategy) Valid() bool {
	switch s {
	case StrategyTrendFollow, StrategyMeanReversion, StrategyMomentum:
		return true
	}
	return false
}

// AgentConfig is the immutable configuration for one agent run.
type AgentConfig struct {
	Strategy    AgentStrategy `json:"strategy"`
	MaxTrades   int           `json:"maxTrades"`
	MaxDrawdown float64       `json:"maxDrawdown"` // percent of initial deposit
	SessionID   string        `json:"sessionId"`
	UserAddress string        `json:"userAddress"`
}

// AgentStats is a snapshot of an agent run's counters.
type AgentStats struct {
	TradesExecuted int     `json:"tradesExecuted"`
	TotalPnL       float64 `json:"totalPnl"`
	Running        bool    `json:"running"`
}

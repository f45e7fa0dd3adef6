package domain

// SettlementData is the payload submitted to the state-channel network to
// finalize a session on-chain.
type SettlementData struct {
	SessionID    string     `json:"sessionId"`
	FinalBalance int64      `json:"finalBalance"` // UnitScale units
	Positions    []Position `json:"positions"`
	TotalPnL     int64      `json:"totalPnl"` // UnitScale units
	Signature    string     `json:"signature"`
}

// SettlementSummary is the human-readable outcome of a session, computed once
// at settlement time. Monetary fields are in display (USDC) units.
//
// GasSaved is a display heuristic proportional to trade count, not a real gas
// computation; it must not be treated as financially authoritative.
type SettlementSummary struct {
	StartingBalance float64 `json:"startingBalance"`
	FinalBalance    float64 `json:"finalBalance"`
	TradesExecuted  int     `json:"tradesExecuted"`
	PnL             float64 `json:"pnl"`
	PnLPercent      float64 `json:"pnlPercent"`
	AgentTrades     int     `json:"agentTrades"`
	ManualTrades    int     `json:"manualTrades"`
	GasSaved        string  `json:"gasSaved"`
	TransactionHash string  `json:"transactionHash,omitempty"`
}

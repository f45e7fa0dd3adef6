package domain

import "time"

// UnitScale is the fixed-point scale for balances and notional sizes:
// 1e6 units equal one USDC.
const UnitScale = 1e6

// Session is a point-in-time record of one trading session: an off-chain
// trading allowance backed by an on-chain deposit, settled once at the end.
// Balances are fixed-point integer amounts at UnitScale.
//
// The mutable working copy lives in the session package behind named
// operations; Session values passed around the rest of the codebase are
// snapshots.
type Session struct {
	ID                string        `json:"id"`
	UserAddress       string        `json:"userAddress"`
	Balance           int64         `json:"balance"`
	InitialDeposit    int64         `json:"initialDeposit"`
	StartTime         time.Time     `json:"startTime"`
	Duration          time.Duration `json:"duration"`
	RiskLevel         int           `json:"riskLevel"`
	Positions         []Position    `json:"positions"` // insertion order = display order
	AgentEnabled      bool          `json:"agentEnabled"`
	ChainID           int           `json:"chainId"`
	SettlementPending bool          `json:"settlementPending"`
	Nonce             uint64        `json:"nonce"`
	SettledAt         *time.Time    `json:"settledAt,omitempty"`
	SettlementTx      string        `json:"settlementTx,omitempty"`
}

// ExpiresAt returns the moment the session's countdown reaches zero.
func (s Session) ExpiresAt() time.Time {
	return s.StartTime.Add(s.Duration)
}

// Remaining returns the time left before expiry at the given instant,
// clamped at zero.
func (s Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// BalanceUSDC returns the running balance in display units.
func (s Session) BalanceUSDC() float64 {
	return float64(s.Balance) / UnitScale
}

// DepositUSDC returns the initial deposit in display units.
func (s Session) DepositUSDC() float64 {
	return float64(s.InitialDeposit) / UnitScale
}

// TradeIntent is a signed instruction to open a position, submitted to the
// state-channel network. Nonce strictly increases per session so the network
// can order intents.
type TradeIntent struct {
	SessionID string `json:"sessionId"`
	Market    Market `json:"market"`
	Side      Side   `json:"side"`
	SizeUnits int64  `json:"sizeUnits"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

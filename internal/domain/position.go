package domain

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a recognised position side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Position is an open simulated position inside a session. The Current,
// PnL, and PnLPercent fields are refreshed on every price tick; everything
// else is set once when the position is opened.
type Position struct {
	ID         string    `json:"id"`
	Market     Market    `json:"market"`
	Side       Side      `json:"side"`
	Entry      float64   `json:"entry"`
	Current    float64   `json:"current"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnlPercent"`
	CreatedAt  time.Time `json:"createdAt"`
	SizeUnits  int64     `json:"sizeUnits"` // fixed-point notional, 1e6 = 1 USDC
	AgentOwned bool      `json:"agentOwned"`
}

// Size returns the display notional from fixed-point units.
func (p Position) Size() float64 {
	return float64(p.SizeUnits) / UnitScale
}

// TradeRecord is one row of per-session trade history. It is what the
// settlement summary's agent/manual split is computed from.
type TradeRecord struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	MarketID    string     `json:"marketId"`
	Side        Side       `json:"side"`
	SizeUnits   int64      `json:"sizeUnits"`
	EntryPrice  float64    `json:"entryPrice"`
	ExitPrice   *float64   `json:"exitPrice,omitempty"`
	RealizedPnL *float64   `json:"realizedPnl,omitempty"`
	AgentOwned  bool       `json:"agentOwned"`
	OpenedAt    time.Time  `json:"openedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

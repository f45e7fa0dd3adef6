// Package session owns the in-memory session state and its lifecycle. All
// mutation goes through named operations on State so the invariants
// (non-negative balance, strictly increasing nonce, single settlement) are
// enforced in one place.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/oracle"
)

// State is the mutex-guarded working copy of one session. It is safe for
// concurrent use by the agent tick, price refresh, and countdown loops.
type State struct {
	mu sync.Mutex
	s  domain.Session
}

// NewState wraps a session record in a State container.
func NewState(s domain.Session) *State {
	return &State{s: s}
}

// Snapshot returns a deep copy of the current session record.
func (st *State) Snapshot() domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.copyLocked()
}

func (st *State) copyLocked() domain.Session {
	cp := st.s
	cp.Positions = make([]domain.Position, len(st.s.Positions))
	copy(cp.Positions, st.s.Positions)
	return cp
}

// ID returns the session identifier.
func (st *State) ID() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.ID
}

// Credit adds units to the running balance.
func (st *State) Credit(units int64) {
	if units < 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Balance += units
}

// Debit removes units from the running balance. It fails with
// ErrInsufficientBalance rather than letting the balance go negative.
func (st *State) Debit(units int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if units < 0 {
		return fmt.Errorf("session: negative debit %d: %w", units, domain.ErrInvalidIntent)
	}
	if st.s.Balance < units {
		return domain.ErrInsufficientBalance
	}
	st.s.Balance -= units
	return nil
}

// ApplyRealized settles a realized P&L delta (which may be negative) into
// the balance. The balance is clamped at zero: a session is an allowance and
// can never owe.
func (st *State) ApplyRealized(deltaUnits int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Balance += deltaUnits
	if st.s.Balance < 0 {
		st.s.Balance = 0
	}
}

// NextNonce increments and returns the trade-intent nonce. Nonces strictly
// increase for the lifetime of the session.
func (st *State) NextNonce() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Nonce++
	return st.s.Nonce
}

// OpenPosition validates and inserts a position at the front of the open set
// (newest first, matching display order).
func (st *State) OpenPosition(p domain.Position) error {
	if p.Entry <= 0 {
		return fmt.Errorf("session: open %s: %w", p.ID, domain.ErrZeroEntryPrice)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("session: open %s: side %q: %w", p.ID, p.Side, domain.ErrInvalidIntent)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Positions = append([]domain.Position{p}, st.s.Positions...)
	return nil
}

// ClosePosition removes a position from the open set and returns it.
func (st *State) ClosePosition(id string) (domain.Position, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, p := range st.s.Positions {
		if p.ID == id {
			st.s.Positions = append(st.s.Positions[:i], st.s.Positions[i+1:]...)
			return p, nil
		}
	}
	return domain.Position{}, fmt.Errorf("session: position %s: %w", id, domain.ErrNotFound)
}

// Position returns a copy of one open position.
func (st *State) Position(id string) (domain.Position, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range st.s.Positions {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Position{}, fmt.Errorf("session: position %s: %w", id, domain.ErrNotFound)
}

// Positions returns a copy of the open-position set in display order.
func (st *State) Positions() []domain.Position {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]domain.Position, len(st.s.Positions))
	copy(out, st.s.Positions)
	return out
}

// MarkPrice refreshes Current/PnL/PnLPercent for every open position on the
// market identified by symbol. Positions with a degenerate entry price are
// skipped; they are rejected at open time so this is belt and braces.
func (st *State) MarkPrice(symbol string, price float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.s.Positions {
		p := &st.s.Positions[i]
		if p.Market.Symbol != symbol {
			continue
		}
		pnl, err := oracle.CalculatePnL(p.Entry, price, p.Side)
		if err != nil {
			continue
		}
		p.Current = price
		p.PnL = pnl.Abs
		p.PnLPercent = pnl.Percent
	}
}

// SetAgentEnabled flips the agent flag.
func (st *State) SetAgentEnabled(enabled bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.AgentEnabled = enabled
}

// AgentEnabled reports the agent flag.
func (st *State) AgentEnabled() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.AgentEnabled
}

// BeginSettlement marks the session as settlement-pending. It is the
// double-submission guard: a second call fails with ErrSettlementPending
// and must not be forwarded to the remote network.
func (st *State) BeginSettlement() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.SettlementPending {
		return domain.ErrSettlementPending
	}
	st.s.SettlementPending = true
	return nil
}

// AbortSettlement clears the settlement-pending flag after a failed
// submission so the user can retry.
func (st *State) AbortSettlement() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.SettlementPending = false
}

// SettlementPending reports whether a settlement is in flight.
func (st *State) SettlementPending() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.SettlementPending
}

// Expired reports whether the session countdown has reached zero.
func (st *State) Expired(now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Remaining(now) == 0
}

// Package oracle provides the market-data price feed and position P&L math.
package oracle

import (
	"fmt"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// PnL is the outcome of marking a position against a current price.
type PnL struct {
	Abs     float64 // absolute price-move P&L
	Percent float64 // relative to entry, in percent
}

// CalculatePnL marks a position to the current price. For a long the P&L is
// current-entry; for a short it is entry-current. Percent is always relative
// to the entry price.
//
// A zero or negative entry price is a caller bug (zero-price markets must be
// rejected upstream) and returns domain.ErrZeroEntryPrice rather than a
// silent zero.
func CalculatePnL(entry, current float64, side domain.Side) (PnL, error) {
	if entry <= 0 {
		return PnL{}, fmt.Errorf("oracle: entry %g: %w", entry, domain.ErrZeroEntryPrice)
	}
	if !side.Valid() {
		return PnL{}, fmt.Errorf("oracle: side %q: %w", side, domain.ErrInvalidIntent)
	}

	diff := current - entry
	pnl := diff
	if side == domain.SideShort {
		pnl = -diff
	}

	return PnL{
		Abs:     pnl,
		Percent: pnl / entry * 100,
	}, nil
}

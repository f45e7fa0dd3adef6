package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oneset-labs/onesetd/internal/domain"
)

const maxLogEntries = 100

// logRing is the agent's capped activity log. Entries are kept most recent
// first; once the cap is reached the oldest entry drops off the end.
type logRing struct {
	mu    sync.Mutex
	cap   int
	items []domain.AgentLog
}

func newLogRing(capacity int) *logRing {
	return &logRing{cap: capacity}
}

func (r *logRing) add(kind domain.LogKind, message string, pnl *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := domain.AgentLog{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
		PnL:       pnl,
	}
	r.items = append([]domain.AgentLog{entry}, r.items...)
	if len(r.items) > r.cap {
		r.items = r.items[:r.cap]
	}
}

// reset drops all entries so a new run starts with an empty log.
func (r *logRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

func (r *logRing) entries() []domain.AgentLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AgentLog, len(r.items))
	copy(out, r.items)
	return out
}

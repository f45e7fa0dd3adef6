// Package sched provides fixed-interval polling tasks with owned
// cancellation. Every timer-driven loop in the service (agent ticks, price
// refresh, session countdown) runs as a sched task so nothing can leak a
// timer past its logical stop.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickFunc is invoked once per interval. Errors are logged by the loop and do
// not stop it; a tick that must halt the loop should cancel the context it
// owns instead.
type TickFunc func(ctx context.Context) error

// Loop is a restartable fixed-interval task with an owned cancellation
// handle. Start and Stop are idempotent.
type Loop struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a Loop that runs fn every interval once started.
func NewLoop(name string, interval time.Duration, fn TickFunc, logger *slog.Logger) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(slog.String("task", name)),
	}
}

// Start begins ticking in a background goroutine. It returns false when the
// loop is already running (the call is a no-op).
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(loopCtx, done)
	return true
}

// Stop cancels the loop and waits for the in-flight tick to finish. It
// returns false when the loop was not running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	if cancel == nil {
		return false
	}

	cancel()
	<-done
	return true
}

// Running reports whether the loop currently owns a live timer.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.fn(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("tick failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

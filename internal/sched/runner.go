package sched

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner owns a set of named fixed-interval tasks that share one lifetime.
// It exists so independent polling loops (price refresh, session countdown)
// are started and cancelled together rather than as ad-hoc timers.
type Runner struct {
	tasks  []*Loop
	logger *slog.Logger
}

// NewRunner creates an empty Runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With(slog.String("component", "sched"))}
}

// Add registers a named task. Add must not be called after Run.
func (r *Runner) Add(name string, interval time.Duration, fn TickFunc) {
	r.tasks = append(r.tasks, NewLoop(name, interval, fn, r.logger))
}

// Run starts every registered task and blocks until ctx is cancelled. All
// tasks are stopped before Run returns, so no timer outlives it.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, task := range r.tasks {
		task.Start(ctx)
	}

	g.Go(func() error {
		<-ctx.Done()
		for _, task := range r.tasks {
			task.Stop()
		}
		return ctx.Err()
	})

	return g.Wait()
}

package sched

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLoop_TicksUntilStopped(t *testing.T) {
	var ticks int32
	l := NewLoop("test", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&ticks, 1)
		return nil
	}, testLogger())

	if !l.Start(context.Background()) {
		t.Fatal("first Start should succeed")
	}
	time.Sleep(40 * time.Millisecond)
	if !l.Stop() {
		t.Fatal("Stop on a running loop should return true")
	}

	n := atomic.LoadInt32(&ticks)
	if n == 0 {
		t.Fatal("expected at least one tick")
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&ticks); got != n {
		t.Fatalf("loop kept ticking after Stop: %d -> %d", n, got)
	}
}

func TestLoop_StartIdempotent(t *testing.T) {
	l := NewLoop("test", time.Hour, func(context.Context) error { return nil }, testLogger())
	defer l.Stop()

	if !l.Start(context.Background()) {
		t.Fatal("first Start should succeed")
	}
	if l.Start(context.Background()) {
		t.Fatal("second Start should be a no-op")
	}
}

func TestLoop_StopIdempotent(t *testing.T) {
	l := NewLoop("test", time.Hour, func(context.Context) error { return nil }, testLogger())

	if l.Stop() {
		t.Fatal("Stop before Start should be a no-op")
	}
	l.Start(context.Background())
	if !l.Stop() {
		t.Fatal("Stop on running loop should return true")
	}
	if l.Stop() {
		t.Fatal("second Stop should be a no-op")
	}
}

func TestLoop_RestartAfterStop(t *testing.T) {
	var ticks int32
	l := NewLoop("test", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&ticks, 1)
		return nil
	}, testLogger())

	l.Start(context.Background())
	time.Sleep(15 * time.Millisecond)
	l.Stop()

	before := atomic.LoadInt32(&ticks)
	l.Start(context.Background())
	time.Sleep(15 * time.Millisecond)
	l.Stop()

	if got := atomic.LoadInt32(&ticks); got <= before {
		t.Fatalf("expected more ticks after restart: %d -> %d", before, got)
	}
}

func TestLoop_TickErrorDoesNotStopLoop(t *testing.T) {
	var ticks int32
	l := NewLoop("test", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&ticks, 1)
		return context.DeadlineExceeded
	}, testLogger())

	l.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	l.Stop()

	if got := atomic.LoadInt32(&ticks); got < 2 {
		t.Fatalf("expected loop to survive tick errors, got %d ticks", got)
	}
}

func TestRunner_StopsAllTasksOnCancel(t *testing.T) {
	var a, b int32
	r := NewRunner(testLogger())
	r.Add("a", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&a, 1)
		return nil
	})
	r.Add("b", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&b, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if atomic.LoadInt32(&a) == 0 || atomic.LoadInt32(&b) == 0 {
		t.Fatal("expected both tasks to tick")
	}
}

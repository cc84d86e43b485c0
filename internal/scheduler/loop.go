// Package scheduler provides fixed-interval loops with single-flight
// semantics: a tick that arrives while the previous run is still in
// flight is skipped, never queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Loop periodically runs a function.
type Loop struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
	log      *slog.Logger

	running atomic.Bool
}

// NewLoop creates a loop. name appears in log records only.
func NewLoop(name string, interval time.Duration, fn func(context.Context) error, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, running fn immediately and then on
// every interval tick. In-flight runs are never interrupted mid-tick by
// the scheduler itself; fn observes cancellation through ctx.
func (l *Loop) Run(ctx context.Context) {
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick starts one run unless the previous one is still going.
func (l *Loop) tick(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Warn("previous run still in flight, skipping tick", "loop", l.name)
		return
	}

	go func() {
		defer l.running.Store(false)

		start := time.Now()
		if err := l.fn(ctx); err != nil {
			l.log.Error("run failed", "loop", l.name, "duration", time.Since(start).String(), "error", err)
			return
		}
		l.log.Debug("run complete", "loop", l.name, "duration", time.Since(start).String())
	}()
}

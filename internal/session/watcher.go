package session

import (
	"context"
	"time"
)

// DefaultCheckInterval is how often the watcher evaluates inactivity.
const DefaultCheckInterval = 60 * time.Second

// Watcher drives the guard's periodic inactivity check.
type Watcher struct {
	guard    *Guard
	interval time.Duration
}

// NewWatcher constructs a watcher. A non-positive interval falls back to the
// default.
func NewWatcher(guard *Guard, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Watcher{guard: guard, interval: interval}
}

// Run checks all sessions on a fixed interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.guard.sweep(ctx)
		}
	}
}

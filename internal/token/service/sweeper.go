package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired tokens are reclaimed.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically evicts expired tokens from the store. Eviction is
// advisory memory hygiene: Validate independently re-checks expiry, so
// correctness never depends on sweep timing.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper constructs a sweeper over the given store. A non-positive
// interval falls back to the default.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			deleted, err := s.store.DeleteExpired(ctx, now)
			if err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "token sweep failed", "error", err)
				}
				continue
			}
			if deleted > 0 && s.logger != nil {
				s.logger.DebugContext(ctx, "evicted expired tokens", "count", deleted)
			}
		}
	}
}

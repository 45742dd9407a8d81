package idempotency

import (
	"context"
	"time"
)

// Sweeper deletes expired records from a store on a fixed interval.
type Sweeper struct {
	store    Store
	interval time.Duration
	batch    int
	timeout  time.Duration
	clock    func() time.Time
	logger   Logger
}

func NewSweeper(store Store, interval time.Duration, batch int, logger Logger) *Sweeper {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		batch:    batch,
		timeout:  time.Minute,
		clock:    time.Now,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is done. It returns at once when the interval
// is not positive.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	removed, err := s.store.CleanupExpired(ctx, s.clock().UTC(), s.batch)
	if err != nil {
		s.logger(ctx, "idempotency.cleanup.failed", map[string]any{"error": err.Error()})
		return 0
	}
	if removed > 0 {
		s.logger(ctx, "idempotency.cleanup.removed", map[string]any{"count": removed})
	}
	return removed
}

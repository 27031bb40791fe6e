// Package reaper runs the periodic expiry sweep. Correctness never depends
// on it: reads perform their own lazy expiry checks, the reaper just keeps
// the table from accumulating dead records between reads.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the sweep runs when not configured.
const DefaultInterval = time.Hour

// Sweeper is the store-side contract the reaper drives.
type Sweeper interface {
	SweepExpired(now time.Time) int
}

// Reaper owns the background sweep loop. Start it once; Shutdown stops the
// loop cooperatively and waits for it to exit.
type Reaper struct {
	store    Sweeper
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reaper sweeping store every interval (DefaultInterval if
// non-positive).
func New(store Sweeper, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the sweep loop. Non-blocking.
func (r *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.RunOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
	r.logger.Info("expiry reaper started", "interval", r.interval)
}

// Shutdown stops the loop and waits for the current sweep, if any, to finish.
func (r *Reaper) Shutdown() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("expiry reaper stopped")
}

// RunOnce performs a single sweep and returns the eviction count. Exposed so
// tests and operators can trigger a deterministic sweep without waiting for
// the ticker.
func (r *Reaper) RunOnce() int {
	evicted := r.store.SweepExpired(r.now())
	if evicted > 0 {
		r.logger.Info("cleaned expired keys", "count", evicted)
	}
	return evicted
}

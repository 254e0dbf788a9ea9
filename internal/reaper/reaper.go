// Package reaper periodically returns abandoned claims to the queue.
package reaper

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often a Reaper scans when none is configured.
const DefaultInterval = 30 * time.Second

// Reclaimer resets stale claims and reports how many it reset.
type Reclaimer interface {
	ReclaimStale(ctx context.Context) (int64, error)
}

// Reaper calls ReclaimStale on a fixed interval. Several reapers may share a
// database; reclamation is a single idempotent update.
type Reaper struct {
	reclaimer Reclaimer
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a reaper. A non-positive interval selects DefaultInterval.
func New(r Reclaimer, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		reclaimer: r,
		interval:  interval,
		logger:    logger.With("component", "reaper"),
	}
}

// Run scans once immediately and then every interval until ctx is done.
// Scan errors are logged and the loop keeps going.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return nil
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *Reaper) scan(ctx context.Context) {
	n, err := r.reclaimer.ReclaimStale(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("stale claim scan failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("stale claims returned to pending", "count", n)
	}
}

package auction

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

// Sweeper drives time-based transitions. Each pass loads auctions whose
// start time has arrived, activates or closes live coordinators whose
// boundaries have passed, and releases closed coordinators once the
// retention window has elapsed.
type Sweeper struct {
	registry    *Registry
	clock       clock.Clock
	interval    time.Duration
	retention   time.Duration
	parallelism int
}

// SweepStats summarizes one pass.
type SweepStats struct {
	Loaded    int
	Activated int
	Closed    int
	Released  int
	Failed    int
}

// NewSweeper creates a sweeper over registry's coordinators and store.
func NewSweeper(registry *Registry, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		registry:    registry,
		clock:       registry.opts.Clock,
		interval:    interval,
		retention:   retention,
		parallelism: 8,
	}
}

// Run sweeps immediately and then every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	log.Infow("lifecycle sweeper started", "interval", s.interval, "retention", s.retention)
	s.Sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			log.Info("lifecycle sweeper stopping")
			return nil
		}
	}
}

// Sweep performs one pass.
func (s *Sweeper) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	now := s.clock.Now()

	pending, err := s.registry.store.ListActive(ctx)
	if err != nil {
		log.Warnw("list active auctions failed", "err", err)
		stats.Failed++
	}
	for _, a := range pending {
		if a.Status == StatusScheduled && now.Before(a.StartTime) {
			continue
		}
		if s.registry.Get(a.ID) != nil {
			continue
		}
		if _, err := s.registry.GetOrCreate(ctx, a.ID); err != nil {
			log.Warnw("load due auction failed", "auction", a.ID, "err", err)
			stats.Failed++
			continue
		}
		stats.Loaded++
	}

	var activated, closed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, c := range s.registry.Coordinators() {
		before := c.Status()
		if before == StatusClosed {
			continue
		}
		g.Go(func() error {
			if err := c.Advance(ctx); err != nil {
				log.Warnw("lifecycle transition failed", "auction", c.ID(), "err", err)
				failed.Add(1)
				return nil
			}
			switch after := c.Status(); {
			case after == before:
			case after == StatusClosed:
				closed.Add(1)
			case after == StatusActive:
				activated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	stats.Activated = int(activated.Load())
	stats.Closed = int(closed.Load())
	stats.Failed += int(failed.Load())

	for _, c := range s.registry.Coordinators() {
		closedAt, ok := c.ClosedAt()
		if !ok || now.Before(closedAt.Add(s.retention)) {
			continue
		}
		if s.registry.Release(c.ID()) {
			stats.Released++
		}
	}

	if stats != (SweepStats{}) {
		log.Debugw("sweep", "loaded", stats.Loaded, "activated", stats.Activated, "closed", stats.Closed, "released", stats.Released, "failed", stats.Failed)
	}
	return stats
}

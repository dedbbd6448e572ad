package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"beacon/internal/logging"
)

// RescanConfig shapes the background refresh schedule.
type RescanConfig struct {
	// Startup delays the first tick after Start, so launch stays snappy.
	Startup time.Duration
	// Period is the pause between consecutive ticks.
	Period time.Duration
	// Campaign is how long a full sweep over the catalog should take.
	// A provider refreshed within Campaign/4 is considered current and
	// skipped.
	Campaign time.Duration
	// Workers bounds concurrent provider fetches.
	Workers int
}

func (c *RescanConfig) withDefaults() RescanConfig {
	out := *c
	if out.Startup <= 0 {
		out.Startup = 10 * time.Second
	}
	if out.Period <= 0 {
		out.Period = 5 * time.Second
	}
	if out.Campaign <= 0 {
		out.Campaign = 10 * time.Minute
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	return out
}

// Rescanner refreshes one stale provider per tick so that every
// non-dynamic provider is re-read roughly once per campaign. Dynamic
// providers recompute per query and are never scheduled. Fetches run
// on a bounded worker pool; the refresh callback owns error handling.
type Rescanner struct {
	cfg       RescanConfig
	providers func() []Provider
	refresh   func(p Provider, force bool)

	mu      sync.Mutex
	last    map[string]time.Time
	timer   *time.Timer
	started bool
	stopped bool

	workers *semaphore.Weighted
	wg      sync.WaitGroup

	log *logging.Logger
}

func NewRescanner(cfg RescanConfig, providers func() []Provider, refresh func(Provider, bool)) *Rescanner {
	cfg = cfg.withDefaults()
	return &Rescanner{
		cfg:       cfg,
		providers: providers,
		refresh:   refresh,
		last:      make(map[string]time.Time),
		workers:   semaphore.NewWeighted(int64(cfg.Workers)),
		log:       logging.For("catalog"),
	}
}

// Start arms the schedule. Safe to call once; later provider set
// changes go through Restart.
func (r *Rescanner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.armLocked(r.cfg.Startup)
}

// Restart re-arms the schedule after the provider set changed.
func (r *Rescanner) Restart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.armLocked(r.cfg.Startup)
}

// Stop cancels the schedule and waits for in-flight fetches.
func (r *Rescanner) Stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Rescanner) armLocked(d time.Duration) {
	r.timer = time.AfterFunc(d, r.tick)
}

// tick picks the most stale provider, refreshes it on a worker, then
// re-arms. The pause stretches when everything is current.
func (r *Rescanner) tick() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	p := r.pickLocked(time.Now())
	if p != nil {
		r.last[p.ID()] = time.Now()
	}
	next := r.cfg.Period
	if p == nil {
		// Nothing stale; the pass is over, sleep out the campaign.
		next = r.cfg.Campaign
	}
	r.armLocked(next)
	r.mu.Unlock()

	if p != nil {
		r.spawn(p, false)
	}
}

// pickLocked returns the schedulable provider with the oldest rescan
// stamp, or nil when all are within the freshness window.
func (r *Rescanner) pickLocked(now time.Time) Provider {
	minInterval := r.cfg.Campaign / 4
	var best Provider
	var bestAt time.Time
	for _, p := range r.providers() {
		if p.Dynamic() {
			continue
		}
		at := r.last[p.ID()]
		if now.Sub(at) < minInterval {
			continue
		}
		if best == nil || at.Before(bestAt) {
			best = p
			bestAt = at
		}
	}
	return best
}

// RescanNow refreshes p immediately, off-schedule. Without force a
// recently refreshed provider is left alone.
func (r *Rescanner) RescanNow(p Provider, force bool) {
	if p.Dynamic() {
		return
	}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if !force {
		if at, ok := r.last[p.ID()]; ok && time.Since(at) < r.cfg.Campaign/4 {
			r.mu.Unlock()
			return
		}
	}
	r.last[p.ID()] = time.Now()
	r.mu.Unlock()

	r.spawn(p, force)
}

// spawn runs one refresh on a worker goroutine. The stopped check and
// wg.Add are a single critical section, so Stop's wait cannot return
// while a refresh is about to start.
func (r *Rescanner) spawn(p Provider, force bool) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		if err := r.workers.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer r.workers.Release(1)
		r.log.Debugw("rescanning provider", "provider", p.ID(), "force", force)
		r.refresh(p, force)
	}()
}

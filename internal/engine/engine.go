// Package engine runs the serial refresh loop that turns reader state into
// snapshots.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
	"github.com/janekbaraniewski/tokenpulse/internal/polling"
)

const DefaultInterval = 30 * time.Second

// Refresher produces a snapshot as of now.
type Refresher interface {
	Aggregate(now time.Time) core.UsageSnapshot
}

type Options struct {
	Interval time.Duration
	Adaptive *polling.Adaptive
	// Events triggers an immediate cycle, typically a watch.Notifier channel.
	Events <-chan struct{}
	Now    func() time.Time
}

type Engine struct {
	refresher Refresher
	interval  time.Duration
	adaptive  *polling.Adaptive
	events    <-chan struct{}
	now       func() time.Time

	mu          sync.RWMutex
	snapshot    core.UsageSnapshot
	fingerprint string
	hasSnapshot bool
	next        time.Duration
	onUpdate    func(core.UsageSnapshot)
}

func New(r Refresher, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Adaptive == nil {
		opts.Adaptive = &polling.Adaptive{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		refresher: r,
		interval:  opts.Interval,
		adaptive:  opts.Adaptive,
		events:    opts.Events,
		now:       opts.Now,
		next:      opts.Interval,
	}
}

func (e *Engine) OnUpdate(fn func(core.UsageSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// Snapshot returns the most recent snapshot, if any cycle has completed.
func (e *Engine) Snapshot() (core.UsageSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot, e.hasSnapshot
}

// NextInterval reports the delay chosen after the last cycle.
func (e *Engine) NextInterval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.next
}

// Refresh runs one cycle and returns the interval to wait before the next.
func (e *Engine) Refresh() time.Duration {
	snap := e.refresher.Aggregate(e.now())
	fp := snap.Fingerprint()

	e.mu.Lock()
	changed := !e.hasSnapshot || fp != e.fingerprint
	e.snapshot = snap
	e.fingerprint = fp
	e.hasSnapshot = true
	next := e.adaptive.Evaluate(changed, e.interval)
	e.next = next
	fn := e.onUpdate
	e.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return next
}

// Run refreshes immediately, then on every timer expiry or change signal
// until ctx is cancelled. Cycles never overlap.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.Refresh())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("engine: context cancelled, stopping refresh loop")
			return
		case <-timer.C:
		case <-e.events:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(e.Refresh())
	}
}

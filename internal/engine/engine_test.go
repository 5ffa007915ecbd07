package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/aggregate"
	"github.com/janekbaraniewski/tokenpulse/internal/core"
	"github.com/janekbaraniewski/tokenpulse/internal/polling"
	"github.com/janekbaraniewski/tokenpulse/internal/statscache"
)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	values []int // TodayMessages per call; the last value repeats
}

func (f *fakeRefresher) Aggregate(now time.Time) core.UsageSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	f.calls++
	return core.UsageSnapshot{GeneratedAt: now, TodayMessages: f.values[i]}
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRefresh_BacksOffOnUnchangedSnapshots(t *testing.T) {
	r := &fakeRefresher{values: []int{1, 1, 1, 1, 2}}
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e := New(r, Options{
		Interval: 30 * time.Second,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})

	// First cycle counts as a change; the next three are unchanged apart
	// from the clock.
	want := []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second, 60 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := e.Refresh(); got != w {
			t.Errorf("cycle %d: interval = %v, want %v", i, got, w)
		}
	}
	snap, ok := e.Snapshot()
	if !ok || snap.TodayMessages != 2 {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
	if e.NextInterval() != 30*time.Second {
		t.Errorf("next interval = %v", e.NextInterval())
	}
}

func TestRefresh_UsesSuppliedAdaptiveState(t *testing.T) {
	r := &fakeRefresher{values: []int{1}}
	e := New(r, Options{Interval: 10 * time.Second, Adaptive: polling.NewAdaptive(1, 15*time.Second)})
	e.Refresh()
	if got := e.Refresh(); got != 15*time.Second {
		t.Errorf("interval = %v, want capped 15s", got)
	}
}

func TestRun_EventTriggersImmediateCycle(t *testing.T) {
	r := &fakeRefresher{values: []int{1}}
	events := make(chan struct{}, 1)
	e := New(r, Options{Interval: time.Hour, Events: events})

	updates := make(chan core.UsageSnapshot, 4)
	e.OnUpdate(func(s core.UsageSnapshot) { updates <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("expected initial refresh")
	}

	events <- struct{}{}
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("event should trigger a refresh")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if r.callCount() != 2 {
		t.Errorf("calls = %d, want 2", r.callCount())
	}
}

func TestRun_TimerDrivesCycles(t *testing.T) {
	r := &fakeRefresher{values: []int{1, 2, 3, 4, 5, 6}}
	e := New(r, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go e.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for r.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.callCount() < 3 {
		t.Errorf("calls = %d, want at least 3", r.callCount())
	}
}

type staticSessions []core.UsageRecord

func (s staticSessions) ReadAllUsageEntries() []core.UsageRecord { return s }
func (s staticSessions) Stats() core.DataQuality                 { return core.DataQuality{} }

type noHistory struct{}

func (noHistory) Load() (*statscache.Summary, bool) { return nil, false }

func TestRefresh_BacksOffWhileHotSessionSitsIdle(t *testing.T) {
	last := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	records := staticSessions{
		{Timestamp: last.Add(-time.Hour), Model: "claude-opus-4-6", MessageID: "m1", SessionID: "s1", InputTokens: 100_000, OutputTokens: 5000, CacheReadTokens: 30_000},
		{Timestamp: last, Model: "claude-opus-4-6", MessageID: "m2", SessionID: "s1", InputTokens: 100_000, OutputTokens: 5000, CacheReadTokens: 30_000},
	}
	agg := aggregate.New(records, noHistory{}, aggregate.Options{WindowDays: 1, Location: time.UTC})

	clock := last.Add(31 * time.Minute)
	e := New(agg, Options{
		Interval: 30 * time.Second,
		Now: func() time.Time {
			clock = clock.Add(30 * time.Second)
			return clock
		},
	})

	var got []time.Duration
	for i := 0; i < 12; i++ {
		got = append(got, e.Refresh())
	}
	snap, _ := e.Snapshot()
	if snap.CurrentSession == nil || snap.CurrentSession.Band == core.BandGreen {
		t.Fatalf("current session = %+v, want a non-green idle session", snap.CurrentSession)
	}
	if got[len(got)-1] <= 30*time.Second {
		t.Errorf("intervals over six idle minutes = %v, want a backed-off interval", got)
	}
}

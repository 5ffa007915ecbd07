package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type fakeSource struct {
	mu     sync.Mutex
	events chan fsnotify.Event
	errors chan error
	added  []string
	fails  int // Add calls to reject before succeeding
	closed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan fsnotify.Event, 16),
		errors: make(chan error, 1),
	}
}

func (f *fakeSource) Add(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("no such file")
	}
	f.added = append(f.added, name)
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSource) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeSource) Errors() <-chan error          { return f.errors }

func (f *fakeSource) addedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

func (f *fakeSource) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

// sourceFactory hands out the given sources in order.
func sourceFactory(srcs ...*fakeSource) func() (eventSource, error) {
	var mu sync.Mutex
	return func() (eventSource, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(srcs) == 0 {
			return nil, errors.New("exhausted")
		}
		s := srcs[0]
		srcs = srcs[1:]
		return s, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func expectSignal(t *testing.T, n *Notifier, timeout time.Duration) {
	t.Helper()
	select {
	case <-n.Events():
	case <-time.After(timeout):
		t.Fatal("expected change signal")
	}
}

func expectNoSignal(t *testing.T, n *Notifier, wait time.Duration) {
	t.Helper()
	select {
	case <-n.Events():
		t.Fatal("unexpected change signal")
	case <-time.After(wait):
	}
}

func TestNotifier_DebounceCoalescesBurst(t *testing.T) {
	file := newFakeSource()
	inv := &countingInvalidator{}
	n := New(Options{
		FilePath:     "/stats.json",
		Debounce:     30 * time.Millisecond,
		Invalidators: []Invalidator{inv},
		newSource:    sourceFactory(file),
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	for i := 0; i < 5; i++ {
		file.events <- fsnotify.Event{Name: "/stats.json", Op: fsnotify.Write}
	}
	expectSignal(t, n, time.Second)
	expectNoSignal(t, n, 80*time.Millisecond)

	if got := inv.n.Load(); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}
}

func TestNotifier_PollingFallback(t *testing.T) {
	inv := &countingInvalidator{}
	n := New(Options{
		FilePath:     "/stats.json",
		TreeRoot:     "/projects",
		PollInterval: 10 * time.Millisecond,
		Invalidators: []Invalidator{inv},
		newSource:    func() (eventSource, error) { return nil, errors.New("inotify exhausted") },
	})
	if err := n.Start(); err != nil {
		t.Fatalf("Start should not fail when falling back: %v", err)
	}
	defer n.Stop()

	if !n.Polling() {
		t.Error("expected polling mode")
	}
	expectSignal(t, n, time.Second)
	if inv.n.Load() == 0 {
		t.Error("poll tick should invalidate readers")
	}
}

func TestNotifier_StopIdempotentAndSilent(t *testing.T) {
	file, tree := newFakeSource(), newFakeSource()
	n := New(Options{
		FilePath:  "/stats.json",
		TreeRoot:  t.TempDir(),
		Debounce:  20 * time.Millisecond,
		newSource: sourceFactory(file, tree),
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}

	file.events <- fsnotify.Event{Name: "/stats.json", Op: fsnotify.Write}
	n.Stop()
	n.Stop()

	if file.closedCount() != 1 || tree.closedCount() != 1 {
		t.Errorf("closed = %d/%d, want each source closed once", file.closedCount(), tree.closedCount())
	}
	n.schedule()
	expectNoSignal(t, n, 60*time.Millisecond)
}

func TestNotifier_MissingFileRetried(t *testing.T) {
	file := newFakeSource()
	file.fails = 2
	n := New(Options{
		FilePath:      "/stats.json",
		Debounce:      10 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
		newSource:     sourceFactory(file),
	})
	if err := n.Start(); err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	defer n.Stop()

	waitFor(t, time.Second, func() bool { return file.addedCount() == 1 })
	expectSignal(t, n, time.Second)
}

func TestNotifier_ReaddsAfterAtomicReplace(t *testing.T) {
	file := newFakeSource()
	n := New(Options{
		FilePath:      "/stats.json",
		Debounce:      10 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
		newSource:     sourceFactory(file),
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	waitFor(t, time.Second, func() bool { return file.addedCount() == 1 })
	file.events <- fsnotify.Event{Name: "/stats.json", Op: fsnotify.Rename}
	waitFor(t, time.Second, func() bool { return file.addedCount() == 2 })
}

func TestNotifier_TreeAddsExistingAndNewDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proj-a", "subagents"), 0o755); err != nil {
		t.Fatal(err)
	}
	tree := newFakeSource()
	n := New(Options{
		TreeRoot:  root,
		Debounce:  10 * time.Millisecond,
		newSource: sourceFactory(tree),
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	waitFor(t, time.Second, func() bool { return tree.addedCount() == 3 })

	created := filepath.Join(root, "proj-b")
	if err := os.Mkdir(created, 0o755); err != nil {
		t.Fatal(err)
	}
	tree.events <- fsnotify.Event{Name: created, Op: fsnotify.Create}
	waitFor(t, time.Second, func() bool { return tree.addedCount() == 4 })
	expectSignal(t, n, time.Second)
}

func TestNotifier_RealWatcherSeesNestedWrites(t *testing.T) {
	root := t.TempDir()
	inv := &countingInvalidator{}
	n := New(Options{
		TreeRoot:     root,
		Debounce:     20 * time.Millisecond,
		Invalidators: []Invalidator{inv},
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()
	if n.Polling() {
		t.Skip("no native watcher on this platform")
	}

	proj := filepath.Join(root, "proj")
	if err := os.Mkdir(proj, 0o755); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, n, 2*time.Second)

	if err := os.WriteFile(filepath.Join(proj, "session.jsonl"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectSignal(t, n, 2*time.Second)
	if inv.n.Load() < 2 {
		t.Errorf("invalidations = %d, want at least 2", inv.n.Load())
	}
}

type blockingInvalidator struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingInvalidator) Invalidate() {
	b.entered <- struct{}{}
	<-b.release
}

func TestNotifier_ScheduleDoesNotWaitForInvalidators(t *testing.T) {
	file := newFakeSource()
	inv := &blockingInvalidator{entered: make(chan struct{}, 1), release: make(chan struct{})}
	n := New(Options{
		FilePath:     "/stats.json",
		Debounce:     10 * time.Millisecond,
		Invalidators: []Invalidator{inv},
		newSource:    sourceFactory(file),
	})
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	defer n.Stop()

	file.events <- fsnotify.Event{Name: "/stats.json", Op: fsnotify.Write}
	select {
	case <-inv.entered:
	case <-time.After(time.Second):
		t.Fatal("invalidator was not called")
	}

	done := make(chan struct{})
	go func() {
		n.schedule()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Error("schedule blocked while an invalidator was running")
	}

	close(inv.release)
	expectSignal(t, n, time.Second)
}

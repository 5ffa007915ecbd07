// Package watch turns filesystem activity on the stats summary and the
// session log tree into debounced change signals.
package watch

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounce      = 2 * time.Second
	DefaultRetryInterval = 60 * time.Second
	DefaultPollInterval  = 60 * time.Second
)

// Invalidator drops cached state when the underlying files change.
type Invalidator interface {
	Invalidate()
}

type Options struct {
	FilePath      string
	TreeRoot      string
	Debounce      time.Duration
	RetryInterval time.Duration
	PollInterval  time.Duration
	Invalidators  []Invalidator

	newSource func() (eventSource, error)
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.newSource == nil {
		o.newSource = newFSNotifySource
	}
	return o
}

// Notifier watches FilePath and TreeRoot and signals on Events after each
// quiet period. With no usable watcher it falls back to a polling ticker.
type Notifier struct {
	opts   Options
	events chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	polling bool
}

func New(opts Options) *Notifier {
	return &Notifier{
		opts:   opts.withDefaults(),
		events: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Events delivers one value per debounced change. Unread signals coalesce.
func (n *Notifier) Events() <-chan struct{} { return n.events }

// Polling reports whether the notifier fell back to ticker-driven signals.
func (n *Notifier) Polling() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.polling
}

func (n *Notifier) Start() error {
	var err error
	n.startOnce.Do(func() { err = n.start() })
	return err
}

func (n *Notifier) start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return nil
	}

	var fileSrc, treeSrc eventSource
	var fileErr, treeErr error
	if n.opts.FilePath != "" {
		fileSrc, fileErr = n.opts.newSource()
	}
	if n.opts.TreeRoot != "" {
		treeSrc, treeErr = n.opts.newSource()
	}

	if fileSrc == nil && treeSrc == nil {
		if fileErr != nil || treeErr != nil {
			log.Printf("watch: no filesystem watcher available (%v, %v), polling every %s", fileErr, treeErr, n.opts.PollInterval)
		}
		n.polling = true
		n.wg.Add(1)
		go n.runPoll()
		return nil
	}

	if fileErr != nil {
		log.Printf("watch: file watcher unavailable: %v", fileErr)
	}
	if treeErr != nil {
		log.Printf("watch: tree watcher unavailable: %v", treeErr)
	}
	if fileSrc != nil {
		n.wg.Add(1)
		go n.runFile(fileSrc)
	}
	if treeSrc != nil {
		n.wg.Add(1)
		go n.runTree(treeSrc)
	}
	return nil
}

// Stop releases every watcher and timer. No signal is delivered after it
// returns. Safe to call more than once.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		if n.timer != nil {
			n.timer.Stop()
			n.timer = nil
		}
		n.mu.Unlock()

		close(n.stop)
		n.wg.Wait()

		select {
		case <-n.events:
		default:
		}
	})
}

// schedule restarts the debounce timer.
func (n *Notifier) schedule() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	if n.timer == nil {
		n.timer = time.AfterFunc(n.opts.Debounce, n.fire)
		return
	}
	n.timer.Reset(n.opts.Debounce)
}

// fire runs the invalidators without holding n.mu so schedule never waits
// on a reader that is mid-parse.
func (n *Notifier) fire() {
	n.mu.Lock()
	stopped := n.stopped
	n.mu.Unlock()
	if stopped {
		return
	}
	for _, inv := range n.opts.Invalidators {
		inv.Invalidate()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	select {
	case n.events <- struct{}{}:
	default:
	}
}

func (n *Notifier) runPoll() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.fire()
		}
	}
}

func (n *Notifier) runFile(src eventSource) {
	defer n.wg.Done()
	defer src.Close()

	path := n.opts.FilePath
	watched := src.Add(path) == nil

	retry := time.NewTicker(n.opts.RetryInterval)
	defer retry.Stop()

	for {
		select {
		case <-n.stop:
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				watched = false
			}
			n.schedule()
		case err, ok := <-src.Errors():
			if !ok {
				return
			}
			log.Printf("watch: %s: %v", path, err)
		case <-retry.C:
			if watched {
				continue
			}
			if src.Add(path) == nil {
				watched = true
				n.schedule()
			}
		}
	}
}

func (n *Notifier) runTree(src eventSource) {
	defer n.wg.Done()
	defer src.Close()

	root := n.opts.TreeRoot
	watched := addTree(src, root) == nil

	retry := time.NewTicker(n.opts.RetryInterval)
	defer retry.Stop()

	for {
		select {
		case <-n.stop:
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(src, ev.Name); err != nil {
						log.Printf("watch: %v", err)
					}
				}
			}
			if ev.Name == root && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				watched = false
			}
			n.schedule()
		case err, ok := <-src.Errors():
			if !ok {
				return
			}
			log.Printf("watch: %s: %v", root, err)
		case <-retry.C:
			if watched {
				continue
			}
			if addTree(src, root) == nil {
				watched = true
				n.schedule()
			}
		}
	}
}

// addTree watches dir and every directory below it.
func addTree(src eventSource, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("watching %s: not a directory", dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := src.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			log.Printf("watch: adding %s: %v", path, err)
		}
		return nil
	})
}

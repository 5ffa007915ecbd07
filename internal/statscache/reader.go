// Package statscache reads the client's precomputed stats-cache.json.
package statscache

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Reader caches the decoded summary keyed by the file's modTime and size.
// It never writes to the file.
type Reader struct {
	path string

	mu      sync.Mutex
	cached  bool
	modTime time.Time
	size    int64
	summary *Summary
}

func New(path string) *Reader {
	return &Reader{path: path}
}

func (r *Reader) Path() string { return r.path }

// Load returns the current summary. A missing or malformed file yields
// (nil, false) so callers carry on with live data alone.
func (r *Reader) Load() (*Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("statscache: stat %s: %v", r.path, err)
		}
		r.dropLocked()
		return nil, false
	}
	if r.cached && r.size == info.Size() && r.modTime.Equal(info.ModTime()) {
		return r.summary, r.summary != nil
	}

	r.cached = true
	r.modTime = info.ModTime()
	r.size = info.Size()
	r.summary = nil

	data, err := os.ReadFile(r.path)
	if err != nil {
		log.Printf("statscache: reading stats cache: %v", err)
		r.dropLocked()
		return nil, false
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		// Cached as "no data" for this modTime/size so the error is logged once.
		log.Printf("statscache: parsing stats cache %s: %v", r.path, err)
		return nil, false
	}
	r.summary = &s
	return r.summary, true
}

// Invalidate forgets the cached summary.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.dropLocked()
	r.mu.Unlock()
}

func (r *Reader) dropLocked() {
	r.cached = false
	r.modTime = time.Time{}
	r.size = 0
	r.summary = nil
}

// DefaultPath returns ~/.claude/stats-cache.json.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "stats-cache.json")
}

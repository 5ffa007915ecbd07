// Package sessionlog discovers and incrementally parses conversation logs.
package sessionlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/janekbaraniewski/tokenpulse/internal/core"
)

const (
	DefaultMaxCachedFiles = 200
	subagentDirName       = "subagents"
	logFileExt            = ".jsonl"
)

type fileEntry struct {
	modTime time.Time
	size    int64
	records []core.UsageRecord
	stats   ParseStats
}

type discoveryCache struct {
	// dirs maps every visited directory to its modTime; a zero time marks a
	// directory that did not exist when the cache was built.
	dirs  map[string]time.Time
	files []string
}

// Reader owns the per-file, discovery and merged caches for one log root.
// All methods are safe to call from multiple goroutines.
type Reader struct {
	root       string
	fs         fileSystem
	maxEntries int

	mu        sync.Mutex
	files     map[string]*fileEntry
	discovery *discoveryCache
	merged    []core.UsageRecord
	hasMerged bool
	scanned   int
	failed    int
}

type Option func(*Reader)

// WithMaxCachedFiles sets the per-file cache ceiling.
func WithMaxCachedFiles(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxEntries = n
		}
	}
}

func New(root string, opts ...Option) *Reader {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	r := &Reader{
		root:       root,
		fs:         osFS{},
		maxEntries: DefaultMaxCachedFiles,
		files:      make(map[string]*fileEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Root() string { return r.root }

// Discover returns the log files under the root, sorted by path.
func (r *Reader) Discover() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := r.discoverLocked()
	out := make([]string, len(files))
	copy(out, files)
	return out
}

func (r *Reader) discoverLocked() []string {
	if r.discovery != nil && !r.dirsChanged(r.discovery.dirs) {
		return r.discovery.files
	}

	cache := &discoveryCache{dirs: make(map[string]time.Time)}
	r.discovery = cache

	rootInfo, err := r.fs.Stat(r.root)
	if err != nil || !rootInfo.IsDir() {
		cache.dirs[r.root] = time.Time{}
		return nil
	}
	cache.dirs[r.root] = rootInfo.ModTime()

	children, err := r.fs.ReadDir(r.root)
	if err != nil {
		log.Printf("sessionlog: listing %s: %v", r.root, err)
		return nil
	}
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		childPath := filepath.Join(r.root, child.Name())
		cache.files = append(cache.files, r.collectDir(childPath, cache.dirs)...)

		subPath := filepath.Join(childPath, subagentDirName)
		if info, err := r.fs.Stat(subPath); err == nil && info.IsDir() {
			cache.files = append(cache.files, r.collectDir(subPath, cache.dirs)...)
		}
	}

	sort.Strings(cache.files)
	return cache.files
}

func (r *Reader) collectDir(dir string, dirs map[string]time.Time) []string {
	info, err := r.fs.Stat(dir)
	if err != nil {
		return nil
	}
	dirs[dir] = info.ModTime()

	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files
}

func (r *Reader) dirsChanged(dirs map[string]time.Time) bool {
	for dir, modTime := range dirs {
		info, err := r.fs.Stat(dir)
		if err != nil {
			if !modTime.IsZero() {
				return true
			}
			continue
		}
		if modTime.IsZero() || !info.ModTime().Equal(modTime) {
			return true
		}
	}
	return false
}

// ReadFile parses one log file without consulting the cache.
func (r *Reader) ReadFile(path string) ([]core.UsageRecord, ParseStats, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, stats, err := ParseStream(f, path)
	if err != nil {
		return nil, stats, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, stats, nil
}

// readCachedLocked returns the records of path, re-parsing only when the
// file's modTime or size moved. ok is false for unreadable files.
func (r *Reader) readCachedLocked(path string) ([]core.UsageRecord, bool) {
	info, err := r.fs.Stat(path)
	if err != nil {
		delete(r.files, path)
		return nil, false
	}
	if e, hit := r.files[path]; hit && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.records, true
	}

	records, stats, err := r.ReadFile(path)
	if err != nil {
		log.Printf("sessionlog: %v", err)
		delete(r.files, path)
		return nil, false
	}
	if c := stats.Corrupt(); c > 0 {
		log.Printf("sessionlog: %s: %d corrupt line(s)", path, c)
	}
	r.storeLocked(path, &fileEntry{
		modTime: info.ModTime(),
		size:    info.Size(),
		records: records,
		stats:   stats,
	})
	return records, true
}

func (r *Reader) storeLocked(path string, e *fileEntry) {
	r.files[path] = e
	if len(r.files) > r.maxEntries {
		r.evictLocked()
	}
}

// evictLocked drops the oldest entries by modTime until the ceiling holds.
func (r *Reader) evictLocked() {
	type aged struct {
		path    string
		modTime time.Time
	}
	all := make([]aged, 0, len(r.files))
	for p, e := range r.files {
		all = append(all, aged{path: p, modTime: e.modTime})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].modTime.Equal(all[j].modTime) {
			return all[i].path < all[j].path
		}
		return all[i].modTime.Before(all[j].modTime)
	})
	for _, a := range all[:len(all)-r.maxEntries] {
		delete(r.files, a.path)
	}
}

// ReadAllUsageEntries returns every discovered record, deduplicated by
// message id (first occurrence wins) and sorted by timestamp. The result is
// cached until Invalidate and must not be modified by the caller.
func (r *Reader) ReadAllUsageEntries() []core.UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasMerged {
		return r.merged
	}

	files := r.discoverLocked()
	failed := 0
	var all []core.UsageRecord
	for _, path := range files {
		records, ok := r.readCachedLocked(path)
		if !ok {
			failed++
			continue
		}
		all = append(all, records...)
	}

	seen := make(map[string]struct{}, len(all))
	merged := make([]core.UsageRecord, 0, len(all))
	for _, rec := range all {
		if _, dup := seen[rec.MessageID]; dup {
			continue
		}
		seen[rec.MessageID] = struct{}{}
		merged = append(merged, rec)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	r.merged = merged
	r.hasMerged = true
	r.scanned = len(files)
	r.failed = failed
	return merged
}

// Invalidate clears the merged and discovery caches. Per-file entries are
// kept; they revalidate themselves against modTime and size.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.merged = nil
	r.hasMerged = false
	r.discovery = nil
	r.mu.Unlock()
}

// Stats reports parse counters over the resident file entries and the
// outcome of the last full scan.
func (r *Reader) Stats() core.DataQuality {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total ParseStats
	for _, e := range r.files {
		total.add(e.stats)
	}
	return core.DataQuality{
		FilesScanned: r.scanned,
		FilesFailed:  r.failed,
		Lines:        total.Lines,
		DecodeErrors: total.DecodeErrors,
		Oversized:    total.Oversized,
		Truncated:    total.Truncated,
	}
}

// CachedFiles returns how many per-file entries are resident.
func (r *Reader) CachedFiles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// DefaultRoot returns ~/.claude/projects.
func DefaultRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects")
}

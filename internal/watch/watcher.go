// Package watch reloads unit sources when they change on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hotswap/internal/logging"
)

// DefaultDebounce is the settle time after the last event on a file.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives the settled paths of one batch, sorted.
type ChangeFunc func(ctx context.Context, paths []string)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Batches       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches a fixed set of source files. It watches their directories
// so editors that replace files on save are still seen.
type Watcher struct {
	mu        sync.RWMutex
	watcher   *fsnotify.Watcher
	files     map[string]bool
	dirs      []string
	pending   map[string]time.Time
	debounce  time.Duration
	onChange  ChangeFunc
	stopCh    chan struct{}
	closeOnce sync.Once
	doneCh    chan struct{}
	running   bool
	started   bool
	stats     Stats
}

// New creates a watcher over paths. Nothing is watched until Start.
func New(paths []string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool),
		pending:  make(map[string]time.Time),
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	sort.Strings(w.dirs)
	return w, nil
}

// Start begins watching. It does not block. A watcher runs at most once;
// later calls are no-ops.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.started = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.started = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		logging.Watcher("watching directory: %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. A batch being
// delivered completes first.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	started := w.started
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		w.closeOnce.Do(func() { close(w.stopCh) })
	}
	if started {
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatcher).Error("error closing watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watcher("context done, watcher loop exiting")
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Error("watch error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	if !w.files[path] {
		return
	}
	logging.Get(logging.CategoryWatcher).Debug("%s event for %s", event.Op, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.stats.Events++
	w.stats.LastEventPath = path
	w.stats.LastEventTime = now
	w.pending[path] = now
}

// flush delivers files whose last event is older than the debounce window.
// Files that no longer exist are dropped until they reappear.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.pending {
		if now.Sub(at) < w.debounce {
			continue
		}
		delete(w.pending, path)
		if _, err := os.Stat(path); err != nil {
			logging.Get(logging.CategoryWatcher).Debug("skipping %s: %v", path, err)
			continue
		}
		settled = append(settled, path)
	}
	if len(settled) > 0 {
		w.stats.Batches++
	}
	w.mu.Unlock()

	if len(settled) == 0 || w.onChange == nil {
		return
	}
	sort.Strings(settled)
	logging.Watcher("%d file(s) changed: %v", len(settled), settled)
	w.onChange(ctx, settled)
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

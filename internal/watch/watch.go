// Package watch re-runs an action when experiment files change on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 300 * time.Millisecond
	tickInterval    = 50 * time.Millisecond
)

// Action is invoked once per debounced batch of changes. Calls never overlap.
type Action func(ctx context.Context, changed []string)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Triggers      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger injects the watcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long the files must stay quiet before the action
// runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher watches a set of files. It subscribes to their parent
// directories so that editors which save by rename are still seen.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	action   Action
	logger   *zap.Logger
	debounce time.Duration

	pending   map[string]bool
	lastEvent time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	stats Stats
}

// New creates a Watcher for files. action runs after each quiet period
// following a change to any of them.
func New(files []string, action Action, opts ...Option) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("watch: no files given")
	}
	if action == nil {
		return nil, fmt.Errorf("watch: nil action")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		action:   action,
		logger:   zap.NewNop(),
		debounce: defaultDebounce,
		pending:  make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.files, w.dirs, err = resolve(files)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// resolve returns the absolute file set and its distinct parent directories.
func resolve(files []string) (map[string]bool, []string, error) {
	set := make(map[string]bool, len(files))
	var dirs []string
	seenDir := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, nil, fmt.Errorf("watch: resolve %s: %w", f, err)
		}
		set[abs] = true
		dir := filepath.Dir(abs)
		if !seenDir[dir] {
			seenDir[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return set, dirs, nil
}

// SetFiles replaces the watched set. Directories no longer needed are
// dropped and new ones subscribed; it is safe to call from the action.
func (w *Watcher) SetFiles(files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("watch: no files given")
	}
	set, dirs, err := resolve(files)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		keep := make(map[string]bool, len(dirs))
		for _, dir := range dirs {
			keep[dir] = true
		}
		old := make(map[string]bool, len(w.dirs))
		for _, dir := range w.dirs {
			old[dir] = true
			if !keep[dir] {
				if err := w.watcher.Remove(dir); err != nil {
					w.logger.Debug("Failed to unwatch directory", zap.String("dir", dir), zap.Error(err))
				}
			}
		}
		for _, dir := range dirs {
			if old[dir] {
				continue
			}
			if err := w.watcher.Add(dir); err != nil {
				return fmt.Errorf("watch: add %s: %w", dir, err)
			}
			w.logger.Debug("Watching directory", zap.String("dir", dir))
		}
	}
	w.files = set
	w.dirs = dirs
	return nil
}

// Start subscribes to the watched directories and begins the event loop in
// a goroutine. It returns immediately; calling it twice is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.logger.Debug("Watching directory", zap.String("dir", dir))
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop ends the event loop, waits for an in-flight action, and releases the
// underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing watcher", zap.Error(err))
	}
	w.logger.Debug("Watcher stopped")
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher context cancelled")
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
			w.logger.Error("Watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	watched := w.files[name]
	w.mu.Unlock()
	if !watched {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	w.logger.Debug("File event", zap.String("type", eventType), zap.String("path", name))

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = name
	w.stats.LastEventType = eventType
	w.pending[name] = true
	w.lastEvent = now
}

// flush runs the action once the pending batch has been quiet for the
// debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for name := range w.pending {
		changed = append(changed, name)
	}
	w.pending = make(map[string]bool)
	w.stats.Triggers++
	w.mu.Unlock()

	w.logger.Info("Change detected, re-running", zap.Strings("files", changed))
	w.action(ctx, changed)
}

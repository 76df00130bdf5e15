// Package watch invalidates cached declaration files when they change on
// disk, so a long-running process picks up edits to the .lace directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/lace/internal/config"
	"github.com/roach88/lace/internal/ledger"
)

// DefaultDelay is how long the watcher waits after the last event before
// invalidating.
const DefaultDelay = 200 * time.Millisecond

// Invalidator drops cached content for one file.
type Invalidator interface {
	Invalidate(path string)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.delay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithOnReload registers fn to run after each batch of invalidations with
// the changed paths, sorted.
func WithOnReload(fn func(paths []string)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher watches one .lace directory.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	target   Invalidator
	delay    time.Duration
	logger   *slog.Logger
	onReload func(paths []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New starts watching dir. Call Run to process events.
func New(dir string, target Invalidator, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w := &Watcher{
		fs:      fsw,
		dir:     dir,
		target:  target,
		delay:   DefaultDelay,
		logger:  slog.Default(),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Tracked reports whether name is a declaration file whose cache entry
// should be dropped on change.
func Tracked(name string) bool {
	switch filepath.Base(name) {
	case config.PoliciesFile, ledger.DecisionsFile, ledger.RequirementsFile:
		return true
	default:
		return false
	}
}

// Run processes events until ctx is cancelled, then closes the watcher.
// Pending invalidations are applied before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				w.flush()
				return nil
			}
			if !Tracked(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				w.flush()
				return nil
			}
			w.logger.Warn("file watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		w.target.Invalidate(p)
		w.logger.Info("declaration file changed, cache invalidated", "path", p)
	}
	if len(paths) > 0 && w.onReload != nil {
		w.onReload(paths)
	}
}

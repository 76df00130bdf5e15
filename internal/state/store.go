// Package state persists the governance history of one project root.
//
// The store loads <root>/state.json lazily, serves every read and mutation
// from memory, and coalesces writes behind a debounce timer: a mutation
// replaces the pending snapshot and restarts the timer, so a burst of
// mutations produces a single write of the latest state. Load failures
// never surface to callers; a corrupt file is logged and replaced by an
// empty snapshot.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the state file name inside a .lace root.
const FileName = "state.json"

// DefaultDebounce is the delay between the last mutation and the write.
const DefaultDebounce = 500 * time.Millisecond

var errNotObject = errors.New("state document is not an object")

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets the write debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithLogger sets the logger used for corruption and write warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the in-memory view of one state file with a debounced writer.
// It is safe for concurrent use.
type Store struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	snap    *Snapshot
	timer   *time.Timer
	pending bool
	gen     uint64

	// writeMu is taken before mu by writers; a snapshot is encoded and
	// written under it so writes land in encoding order.
	writeMu sync.Mutex
}

// New creates a store for <root>/state.json. Nothing is read until first use.
func New(root string, opts ...Option) *Store {
	path := filepath.Join(root, FileName)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	s := &Store{
		path:     path,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the resolved state file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Clone()
}

// ViolationCount returns the recorded count for a policy id, 0 if unknown.
func (s *Store) ViolationCount(policyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Violations[policyID]
}

// FileViolationCount returns the recorded count for a module path.
func (s *Store) FileViolationCount(modulePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Files[modulePath].ViolationCount
}

// IncrementViolation adds one to the policy's count and to the module's
// file count, then schedules a write.
func (s *Store) IncrementViolation(policyID, modulePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.loadLocked()
	snap.Violations[policyID]++
	stats := snap.Files[modulePath]
	stats.ViolationCount++
	snap.Files[modulePath] = stats
	s.scheduleLocked()
}

// Entropy returns the last stored score for a module path.
func (s *Store) Entropy(modulePath string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.loadLocked().Entropy[modulePath]
	return score, ok
}

// SetEntropy stores score, rounded to four decimals, and schedules a write.
func (s *Store) SetEntropy(modulePath string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked().Entropy[modulePath] = Round4(score)
	s.scheduleLocked()
}

// Pending reports whether a debounced write is outstanding.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush cancels the debounce timer and writes the latest state now.
// It is a no-op when nothing is pending.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
	data, err := s.encodeLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.write(data)
}

// Reset drops the in-memory state so the next access reloads from disk.
// A pending write is discarded.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
	s.snap = nil
}

func (s *Store) loadLocked() *Snapshot {
	if s.snap != nil {
		return s.snap
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.snap = Empty()
	case err != nil:
		s.logger.Warn("unreadable state file, resetting persistent state",
			"path", s.path,
			"error", err)
		s.snap = Empty()
	default:
		snap, err := Sanitize(data)
		if err != nil {
			s.logger.Warn("corrupt state file, resetting persistent state",
				"path", s.path,
				"error", err)
			snap = Empty()
		}
		s.snap = snap
	}
	return s.snap
}

func (s *Store) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	s.pending = true
	gen := s.gen
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(gen)
	})
}

func (s *Store) fire(gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = nil
	data, err := s.encodeLocked()
	s.mu.Unlock()

	if err == nil {
		err = s.write(data)
	}
	if err != nil {
		s.logger.Warn("failed to write persistent state",
			"path", s.path,
			"error", err)
	}
}

func (s *Store) encodeLocked() ([]byte, error) {
	data, err := json.MarshalIndent(s.loadLocked(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func (s *Store) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", FileName, err)
	}
	return nil
}

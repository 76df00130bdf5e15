package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func start(t *testing.T, dir string, rec *recorder, opts ...Option) {
	t.Helper()
	opts = append([]Option{
		WithDelay(20 * time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	w, err := New(dir, rec, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestTracked(t *testing.T) {
	assert.True(t, Tracked("/p/.lace/policies.yaml"))
	assert.True(t, Tracked("decisions.yaml"))
	assert.True(t, Tracked("requirements.yaml"))
	assert.False(t, Tracked("/p/.lace/state.json"))
	assert.False(t, Tracked("history.db-wal"))
}

func TestRun_InvalidatesChangedDeclarations(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.yaml"), []byte("policies: []\n"), 0o644))

	require.Eventually(t, func() bool {
		for _, p := range rec.seen() {
			if p == "policies.yaml" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRun_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decisions.yaml"), []byte("decisions: []\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(rec.seen()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotContains(t, rec.seen(), "state.json")
}

func TestRun_CoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, dir, rec)

	path := filepath.Join(dir, "requirements.yaml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("requirements: []\n"), 0o644))
	}

	require.Eventually(t, func() bool {
		return len(rec.seen()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Less(t, len(rec.seen()), 5)
}

func TestRun_OnReloadAfterInvalidation(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	reloads := make(chan []string, 8)
	start(t, dir, rec, WithOnReload(func(paths []string) {
		reloads <- paths
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "decisions.yaml"), []byte("decisions: []\n"), 0o644))

	select {
	case paths := <-reloads:
		require.NotEmpty(t, paths)
		assert.Equal(t, "decisions.yaml", filepath.Base(paths[0]))
		assert.Contains(t, rec.seen(), "decisions.yaml")
	case <-time.After(2 * time.Second):
		t.Fatal("no reload callback")
	}
}

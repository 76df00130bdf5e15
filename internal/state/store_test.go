package state

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, root string, opts ...Option) (*Store, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(root, opts...), &logs
}

func writeState(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	store, logs := newTestStore(t, t.TempDir())

	snap := store.Snapshot()
	assert.Empty(t, snap.Violations)
	assert.Empty(t, snap.Files)
	assert.Empty(t, snap.Entropy)
	assert.NotNil(t, snap.Violations)
	assert.NotNil(t, snap.Files)
	assert.NotNil(t, snap.Entropy)
	assert.Empty(t, logs.String(), "missing file is not worth a warning")
}

func TestStore_CorruptFileResetsWithWarning(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "{invalid")
	store, logs := newTestStore(t, root)

	snap := store.Snapshot()
	assert.Empty(t, snap.Entropy)
	assert.Contains(t, logs.String(), "corrupt state file")
}

func TestStore_NonObjectResetsWithWarning(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, "[1, 2]")
	store, logs := newTestStore(t, root)

	assert.Empty(t, store.Snapshot().Violations)
	assert.Contains(t, logs.String(), "corrupt state file")
}

func TestStore_SanitizesOnLoad(t *testing.T) {
	root := t.TempDir()
	writeState(t, root, `{
  "violations": {"RULE": 1, "BAD": "x", "NULL": null},
  "files": {"src/a.cpp": {"violationCount": 2, "extra": true}, "src/b.cpp": {}, "src/c.cpp": 3},
  "entropy": {"src/a.cpp": 0.123456, "BAD": "y"},
  "extraKey": {}
}`)
	store, _ := newTestStore(t, root)

	snap := store.Snapshot()
	assert.Equal(t, map[string]int{"RULE": 1}, snap.Violations)
	assert.Equal(t, map[string]FileStats{"src/a.cpp": {ViolationCount: 2}}, snap.Files)
	assert.Equal(t, map[string]float64{"src/a.cpp": 0.1235}, snap.Entropy)
}

func TestSanitize_MissingMapsDefaulted(t *testing.T) {
	snap, err := Sanitize([]byte(`{"violations": {"RULE": 1, "BAD": "x"}}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"RULE": 1}, snap.Violations)
	assert.NotNil(t, snap.Files)
	assert.Empty(t, snap.Files)
	assert.NotNil(t, snap.Entropy)
	assert.Empty(t, snap.Entropy)
}

func TestSanitize_WrongMapShapesAreEmpty(t *testing.T) {
	snap, err := Sanitize([]byte(`{"violations": [1], "files": "x", "entropy": 4}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Violations)
	assert.Empty(t, snap.Files)
	assert.Empty(t, snap.Entropy)
}

func TestStore_IncrementViolation(t *testing.T) {
	store, _ := newTestStore(t, t.TempDir(), WithDebounce(time.Hour))

	assert.Equal(t, 0, store.ViolationCount("RULE-A"))
	store.IncrementViolation("RULE-A", "src/a.cpp")
	store.IncrementViolation("RULE-A", "src/a.cpp")
	store.IncrementViolation("RULE-B", "src/b.cpp")

	assert.Equal(t, 2, store.ViolationCount("RULE-A"))
	assert.Equal(t, 2, store.FileViolationCount("src/a.cpp"))
	assert.Equal(t, 1, store.FileViolationCount("src/b.cpp"))
	assert.True(t, store.Pending())
}

func TestStore_SetEntropyRounds(t *testing.T) {
	store, _ := newTestStore(t, t.TempDir(), WithDebounce(time.Hour))

	_, ok := store.Entropy("src/a.cpp")
	assert.False(t, ok)

	store.SetEntropy("src/a.cpp", 0.123456)
	score, ok := store.Entropy("src/a.cpp")
	require.True(t, ok)
	assert.Equal(t, 0.1235, score)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	store, _ := newTestStore(t, t.TempDir(), WithDebounce(time.Hour))
	store.IncrementViolation("RULE", "a")

	snap := store.Snapshot()
	snap.Violations["RULE"] = 99

	assert.Equal(t, 1, store.ViolationCount("RULE"))
}

func TestStore_DebouncedWriteCoalesces(t *testing.T) {
	root := t.TempDir()
	store, _ := newTestStore(t, root, WithDebounce(20*time.Millisecond))

	store.IncrementViolation("RULE", "src/a.cpp")
	store.IncrementViolation("RULE", "src/a.cpp")
	store.SetEntropy("src/a.cpp", 0.5)

	_, err := os.Stat(filepath.Join(root, FileName))
	assert.True(t, os.IsNotExist(err), "nothing is written before the debounce fires")

	var onDisk Snapshot
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(root, FileName))
		if err != nil {
			return false
		}
		return json.Unmarshal(data, &onDisk) == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, onDisk.Violations["RULE"])
	assert.Equal(t, 2, onDisk.Files["src/a.cpp"].ViolationCount)
	assert.Equal(t, 0.5, onDisk.Entropy["src/a.cpp"])
}

func TestStore_FlushWritesImmediately(t *testing.T) {
	root := t.TempDir()
	store, _ := newTestStore(t, root, WithDebounce(time.Hour))

	require.NoError(t, store.Flush(), "flush with nothing pending is a no-op")
	_, err := os.Stat(filepath.Join(root, FileName))
	assert.True(t, os.IsNotExist(err))

	store.IncrementViolation("RULE", "src/a.cpp")
	require.NoError(t, store.Flush())
	assert.False(t, store.Pending())

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.Equal(t, `{
  "violations": {
    "RULE": 1
  },
  "files": {
    "src/a.cpp": {
      "violationCount": 1
    }
  },
  "entropy": {}
}`, string(data))
}

func TestStore_ReloadAfterReset(t *testing.T) {
	root := t.TempDir()
	store, _ := newTestStore(t, root, WithDebounce(time.Hour))
	store.IncrementViolation("RULE", "a")
	require.NoError(t, store.Flush())

	store.Reset()
	assert.Equal(t, 1, store.ViolationCount("RULE"))

	other, _ := newTestStore(t, root)
	assert.Equal(t, 1, other.ViolationCount("RULE"))
}

func TestStore_SeparateRootsDoNotShareState(t *testing.T) {
	a, _ := newTestStore(t, t.TempDir(), WithDebounce(time.Hour))
	b, _ := newTestStore(t, t.TempDir(), WithDebounce(time.Hour))

	a.IncrementViolation("RULE", "x")
	assert.Equal(t, 1, a.ViolationCount("RULE"))
	assert.Equal(t, 0, b.ViolationCount("RULE"))
}

package filecache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingDecoder(calls *int) DecodeFunc[string] {
	return func(data []byte) (string, error) {
		*calls++
		return strings.TrimSpace(string(data)), nil
	}
}

func TestLoad_ReusesEntryWhileMtimeUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	cache := New[string]()
	calls := 0

	v1, err := cache.Load(path, countingDecoder(&calls))
	require.NoError(t, err)
	v2, err := cache.Load(path, countingDecoder(&calls))
	require.NoError(t, err)

	assert.Equal(t, "first", v1)
	assert.Equal(t, "first", v2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestLoad_ReplacesEntryWhenMtimeChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	cache := New[string]()
	calls := 0

	_, err := cache.Load(path, countingDecoder(&calls))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	v, err := cache.Load(path, countingDecoder(&calls))
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestLoad_MissingFileIsNotExist(t *testing.T) {
	cache := New[string]()
	calls := 0

	_, err := cache.Load(filepath.Join(t.TempDir(), "missing.yaml"), countingDecoder(&calls))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Zero(t, calls)
}

func TestLoad_DecodeErrorIsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o644))

	cache := New[string]()
	_, err := cache.Load(path, func([]byte) (string, error) {
		return "", errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Zero(t, cache.Len())
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	cache := New[string]()
	calls := 0
	_, err := cache.Load(a, countingDecoder(&calls))
	require.NoError(t, err)
	_, err = cache.Load(b, countingDecoder(&calls))
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	cache.Clear(a)
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Load(a, countingDecoder(&calls))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	cache.ClearAll()
	assert.Zero(t, cache.Len())
}

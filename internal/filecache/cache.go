// Package filecache caches decoded declaration files by resolved path and
// modification time.
//
// An entry is reused only while the file's mtime is unchanged. A changed
// mtime replaces the entry wholesale on the next Load; there is no partial
// invalidation and no time-based expiry. Concurrent misses for the same
// path are coalesced so a file is read and decoded once.
package filecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DecodeFunc turns raw file bytes into a cached value.
type DecodeFunc[T any] func(data []byte) (T, error)

type entry[T any] struct {
	modTime time.Time
	value   T
}

// Cache is a path+mtime keyed cache. The zero value is not usable; use New.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	group   singleflight.Group
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]entry[T])}
}

// Load returns the cached value for path, decoding the file again when its
// modification time differs from the cached one.
//
// Stat and read errors are returned wrapped, so callers can test them with
// errors.Is(err, fs.ErrNotExist).
func (c *Cache[T]) Load(path string, decode DecodeFunc[T]) (T, error) {
	var zero T

	key, err := Key(path)
	if err != nil {
		return zero, err
	}

	info, err := os.Stat(key)
	if err != nil {
		return zero, fmt.Errorf("stat %s: %w", filepath.Base(key), err)
	}
	modTime := info.ModTime()

	if value, ok := c.lookup(key, modTime); ok {
		return value, nil
	}

	// Include the mtime so a load racing with a rewrite is not shared
	// with callers that already observed the newer file.
	flightKey := key + "@" + modTime.Format(time.RFC3339Nano)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		data, err := os.ReadFile(key)
		if err != nil {
			return zero, fmt.Errorf("read %s: %w", filepath.Base(key), err)
		}
		value, err := decode(data)
		if err != nil {
			return zero, err
		}
		c.mu.Lock()
		c.entries[key] = entry[T]{modTime: modTime, value: value}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache[T]) lookup(key string, modTime time.Time) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[key]
	if !ok || !cached.modTime.Equal(modTime) {
		var zero T
		return zero, false
	}
	return cached.value, true
}

// Clear drops the entry for path. Unknown paths are ignored.
func (c *Cache[T]) Clear(path string) {
	key, err := Key(path)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ClearAll drops every entry.
func (c *Cache[T]) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key resolves path to the absolute, cleaned form used as cache key.
func Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

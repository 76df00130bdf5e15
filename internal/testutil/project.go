// Package testutil builds throwaway .lace projects for tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lace/internal/config"
)

// LegacyPolicy is a strict policy forbidding legacy includes under src/.
const LegacyPolicy = `policies:
  - id: RULE-1
    description: No legacy IO
    severity: strict
    language: cpp
    scope:
      module_glob: "src/**"
    forbidden_imports: ["**/legacy/**"]
`

// LegacySource includes one legacy header.
const LegacySource = "#include \"legacy/io.h\"\n\nint main() {\n  return 0;\n}\n"

// Project creates a temporary project whose .lace directory holds files,
// keyed by file name. It returns the located project.
func Project(t testing.TB, files map[string]string) config.Location {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, config.DirName)
	require.NoError(t, os.MkdirAll(root, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	loc, err := config.Locate(dir)
	require.NoError(t, err)
	return loc
}

// WriteSource writes a project file at the slash-separated rel path and
// returns its absolute path.
func WriteSource(t testing.TB, loc config.Location, rel, content string) string {
	t.Helper()

	path := filepath.Join(loc.ProjectDir(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Settings returns default settings with a debounce long enough that no
// state write fires during a test unless flushed.
func Settings() config.Settings {
	s := config.DefaultSettings()
	s.Debounce = time.Hour
	return s
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

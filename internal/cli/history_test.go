package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lace/internal/config"
	"github.com/roach88/lace/internal/history"
)

func TestHistory_RecordsWithFlag(t *testing.T) {
	dir := legacyProject(t, nil)

	for i := 0; i < 2; i++ {
		_, _, err := execute(t, dir, "--history", "evaluate", "src/a.cpp")
		require.Equal(t, ExitFailure, GetExitCode(err))
	}

	stdout, _, err := execute(t, dir, "--format", "json", "history", "src/a.cpp", "--limit", "0")
	require.NoError(t, err)

	var resp struct {
		Data HistoryReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "src/a.cpp", resp.Data.Module)
	require.Len(t, resp.Data.Entries, 2)
	assert.Less(t, resp.Data.Entries[0].Seq, resp.Data.Entries[1].Seq)
	assert.NotEqual(t, resp.Data.Entries[0].RunID, resp.Data.Entries[1].RunID)
	assert.Equal(t, 1, resp.Data.Entries[1].StrictViolations)
	assert.NotEmpty(t, resp.Data.Entries[0].ContextHash)
	assert.Equal(t, resp.Data.Entries[0].ContextHash, resp.Data.Entries[1].ContextHash)
}

func TestHistory_RecordsWithSetting(t *testing.T) {
	dir := legacyProject(t, map[string]string{config.SettingsFile: "history: true\n"})

	_, _, _ = execute(t, dir, "evaluate", "src/a.cpp")

	assert.FileExists(t, filepath.Join(dir, config.DirName, history.FileName))
	stdout, _, err := execute(t, dir, "history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "SEQ")
	assert.Contains(t, stdout, "src/a.cpp")
}

func TestHistory_NotRecordedByDefault(t *testing.T) {
	dir := legacyProject(t, nil)

	_, _, _ = execute(t, dir, "evaluate", "src/a.cpp")

	_, err := os.Stat(filepath.Join(dir, config.DirName, history.FileName))
	assert.True(t, os.IsNotExist(err))

	stdout, _, err := execute(t, dir, "history")
	require.NoError(t, err)
	assert.Equal(t, "No evaluations recorded.\n", stdout)
}

func TestHistory_NegativeLimit(t *testing.T) {
	_, _, err := execute(t, legacyProject(t, nil), "history", "--limit", "-1")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

package cli

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lace/internal/config"
	"github.com/roach88/lace/internal/testutil"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

const (
	summaryDecisions = `decisions:
  - id: DEC-2
    title: Adapters own IO
    affected_modules: ["src/**"]
  - id: DEC-1
    title: Legacy IO is frozen
    linked_policies: [RULE-1]
`
	summaryRequirements = `requirements:
  - id: REQ-1
    description: Streaming upload
    modules: ["src/**"]
    stage: development
`
)

func summaryProject(t *testing.T) string {
	t.Helper()
	dir := legacyProject(t, map[string]string{
		"decisions.yaml":    summaryDecisions,
		"requirements.yaml": summaryRequirements,
	})
	loc, err := config.Locate(dir)
	require.NoError(t, err)
	testutil.WriteSource(t, loc, "docs/notes.py", "import os\n")
	return dir
}

func TestPRSummary_Text(t *testing.T) {
	stdout, _, err := execute(t, summaryProject(t), "pr-summary", "--changed-files", "src/a.cpp,docs/notes.py")

	require.NoError(t, err)
	newGolden(t).Assert(t, "pr_summary", []byte(stdout))
}

func TestPRSummary_PositionalFiles(t *testing.T) {
	stdout, _, err := execute(t, summaryProject(t), "--format", "json", "pr-summary", "--changed-files", "src/a.cpp", "docs/notes.py")
	require.NoError(t, err)

	var resp struct {
		Data PRSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, []string{"DEC-1", "DEC-2"}, resp.Data.AffectedDecisions)
	assert.Equal(t, []string{"REQ-1"}, resp.Data.AffectedRequirements)
	assert.Equal(t, 1, resp.Data.NewStrictViolations)
	assert.Equal(t, 0.0, resp.Data.EntropyDelta)
}

func TestPRSummary_NothingAffected(t *testing.T) {
	dir := summaryProject(t)

	stdout, _, err := execute(t, dir, "pr-summary", "--changed-files", "docs/notes.py")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Affected Decisions:\n  None\nAffected Requirements:\n  None\n")
	assert.Contains(t, stdout, "New Strict Violations: 0\n")
}

func TestPRSummary_RequiresChangedFiles(t *testing.T) {
	_, stderr, err := execute(t, summaryProject(t), "pr-summary", "src/a.cpp")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "pr-summary requires --changed-files")
}

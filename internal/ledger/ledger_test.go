package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decision(t *testing.T, id string, modules, policies []string) *Decision {
	t.Helper()
	d, err := NewDecision(id, "title "+id, "", modules, policies)
	require.NoError(t, err)
	return d
}

func requirement(t *testing.T, id string, stage Stage, modules ...string) *Requirement {
	t.Helper()
	r, err := NewRequirement(id, "desc "+id, stage, modules)
	require.NoError(t, err)
	return r
}

func ids(records []DecisionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestSelectDecisions_ModuleOrPolicyMatch(t *testing.T) {
	entries := []*Decision{
		decision(t, "DEC-B", []string{"src/**"}, nil),
		decision(t, "DEC-A", nil, []string{"rule-1"}),
		decision(t, "DEC-C", []string{"lib/**"}, []string{"RULE-9"}),
	}

	got := SelectDecisions(entries, "src/a.cpp", []string{"RULE-1"})
	assert.Equal(t, []string{"DEC-A", "DEC-B"}, ids(got))
}

func TestSelectDecisions_BoundedSortedAndDeduplicated(t *testing.T) {
	entries := []*Decision{
		decision(t, "DEC-3", []string{"**"}, nil),
		decision(t, "DEC-1", []string{"**"}, nil),
		decision(t, "DEC-1", nil, []string{"RULE"}),
		decision(t, "DEC-2", []string{"src/*"}, nil),
	}

	got := SelectDecisions(entries, "src/a.cpp", []string{"RULE"})
	assert.Equal(t, []string{"DEC-1", "DEC-2"}, ids(got))
	assert.LessOrEqual(t, len(got), MaxDecisions)
}

func TestSelectDecisions_Deterministic(t *testing.T) {
	forward := []*Decision{
		decision(t, "DEC-2", []string{"**"}, nil),
		decision(t, "DEC-1", []string{"**"}, nil),
		decision(t, "DEC-0", []string{"**"}, nil),
	}
	reversed := []*Decision{forward[2], forward[1], forward[0]}

	first := SelectDecisions(forward, "a.cpp", nil)
	second := SelectDecisions(forward, "a.cpp", nil)
	third := SelectDecisions(reversed, "a.cpp", nil)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, []string{"DEC-0", "DEC-1"}, ids(first))
}

func TestSelectDecisions_NoMatch(t *testing.T) {
	entries := []*Decision{decision(t, "DEC-1", []string{"lib/**"}, []string{"X"})}

	assert.Empty(t, SelectDecisions(entries, "src/a.cpp", []string{"Y"}))
	assert.Empty(t, SelectDecisions(nil, "src/a.cpp", nil))
}

func TestSelectRequirement_ExcludesStable(t *testing.T) {
	entries := []*Requirement{
		requirement(t, "REQ-1", StageStable, "src/**"),
		requirement(t, "REQ-2", StageReview, "src/**"),
	}

	got := SelectRequirement(entries, "src/a.cpp")
	require.NotNil(t, got)
	assert.Equal(t, "REQ-2", got.ID)

	onlyStable := []*Requirement{requirement(t, "REQ-1", StageStable, "src/**")}
	assert.Nil(t, SelectRequirement(onlyStable, "src/a.cpp"))
}

func TestSelectRequirement_SmallestIDWins(t *testing.T) {
	entries := []*Requirement{
		requirement(t, "REQ-9", StageDevelopment, "**"),
		requirement(t, "REQ-10", "", "src/**"),
		requirement(t, "REQ-5", StageReview, "lib/**"),
	}

	got := SelectRequirement(entries, "src/a.cpp")
	require.NotNil(t, got)
	assert.Equal(t, "REQ-10", got.ID)
	assert.Equal(t, StageDevelopment, got.Stage)
}

func TestLedger_LoadsFromDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DecisionsFile), []byte(`
decisions:
  - id: DEC-1
    title: Adapters own IO
    rationale: keep the core pure
    affected_modules: ["src/**"]
    linked_policies: [RULE-1]
  - id: DEC-2
  - title: missing id
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, RequirementsFile), []byte(`
requirements:
  - id: REQ-1
    description: Streaming upload
    modules: ["src/**"]
    stage: review
    decisions: [DEC-1]
  - id: REQ-0
    description: Done already
    modules: ["src/**"]
    stage: stable
`), 0o644))

	l := New()

	decisions, err := l.DecisionsForFile(root, "src/a.cpp", nil)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionRecord{ID: "DEC-1", Title: "Adapters own IO", Rationale: "keep the core pure"}, decisions[0])

	req, err := l.RequirementForFile(root, "src/a.cpp")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "REQ-1", req.ID)

	reqs, err := l.Requirements(root)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"DEC-1"}, reqs[0].Decisions)
}

func TestLedger_MissingFilesAreEmpty(t *testing.T) {
	l := New()
	root := t.TempDir()

	decisions, err := l.DecisionsForFile(root, "src/a.cpp", []string{"X"})
	require.NoError(t, err)
	assert.Empty(t, decisions)

	req, err := l.RequirementForFile(root, "src/a.cpp")
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestLedger_ParseErrorPropagates(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DecisionsFile), []byte("decisions: [\n"), 0o644))

	_, err := New().Decisions(root)
	assert.Error(t, err)
}

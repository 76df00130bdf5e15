// Package ledger loads the decision ledger and requirement graph of a
// project and selects the records relevant to one file.
package ledger

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/roach88/lace/internal/filecache"
)

// Ledger caches decisions and requirements by path and modification time.
// One Ledger belongs to one project.
type Ledger struct {
	decisions    *filecache.Cache[[]*Decision]
	requirements *filecache.Cache[[]*Requirement]
}

// New creates a ledger with empty caches.
func New() *Ledger {
	return &Ledger{
		decisions:    filecache.New[[]*Decision](),
		requirements: filecache.New[[]*Requirement](),
	}
}

// Decisions loads <root>/decisions.yaml. A missing file yields no
// decisions; other I/O and parse errors are returned.
func (l *Ledger) Decisions(root string) ([]*Decision, error) {
	entries, err := l.decisions.Load(filepath.Join(root, DecisionsFile), ParseDecisions)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Decision{}, nil
	}
	return entries, err
}

// Requirements loads <root>/requirements.yaml. A missing file yields no
// requirements; other I/O and parse errors are returned.
func (l *Ledger) Requirements(root string) ([]*Requirement, error) {
	entries, err := l.requirements.Load(filepath.Join(root, RequirementsFile), ParseRequirements)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Requirement{}, nil
	}
	return entries, err
}

// DecisionsForFile loads the ledger and selects the decisions for modulePath.
func (l *Ledger) DecisionsForFile(root, modulePath string, policyIDs []string) ([]DecisionRecord, error) {
	entries, err := l.Decisions(root)
	if err != nil {
		return nil, err
	}
	return SelectDecisions(entries, modulePath, policyIDs), nil
}

// RequirementForFile loads the graph and selects the requirement for modulePath.
func (l *Ledger) RequirementForFile(root, modulePath string) (*RequirementRecord, error) {
	entries, err := l.Requirements(root)
	if err != nil {
		return nil, err
	}
	return SelectRequirement(entries, modulePath), nil
}

// Clear invalidates the cached entry for path, whichever file it is.
func (l *Ledger) Clear(path string) {
	l.decisions.Clear(path)
	l.requirements.Clear(path)
}

// ClearAll invalidates both caches.
func (l *Ledger) ClearAll() {
	l.decisions.ClearAll()
	l.requirements.ClearAll()
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

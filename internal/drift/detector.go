// Package drift detects persistently recurring governance issues from the
// violation history of a project.
package drift

import (
	"sort"

	"github.com/roach88/lace/internal/policy"
	"github.com/roach88/lace/internal/state"
)

// DefaultThreshold is the historical count at which an issue is recurring.
const DefaultThreshold = 3

// Report lists what has crossed the recurrence threshold.
type Report struct {
	// RecurringViolations are policy ids over the threshold, project-wide.
	RecurringViolations []string `json:"recurringViolations"`
	// UnstableModules are module paths over the threshold, project-wide.
	UnstableModules []string `json:"unstableModules"`
	// IgnoredDecisions are origins of currently matched policies whose
	// history is over the threshold.
	IgnoredDecisions []string `json:"ignoredDecisions"`
}

// Detector reads one project's persisted history.
type Detector struct {
	store     *state.Store
	threshold int
}

// NewDetector creates a detector. A threshold below 1 selects
// DefaultThreshold.
func NewDetector(store *state.Store, threshold int) *Detector {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Detector{store: store, threshold: threshold}
}

// Threshold returns the recurrence threshold in use.
func (d *Detector) Threshold() int {
	return d.threshold
}

// Analyze builds the drift report for the policies matched by one
// evaluation. All lists are sorted and never nil.
func (d *Detector) Analyze(matches []policy.Match) Report {
	snap := d.store.Snapshot()

	r := Report{
		RecurringViolations: []string{},
		UnstableModules:     []string{},
		IgnoredDecisions:    []string{},
	}

	for id, count := range snap.Violations {
		if count >= d.threshold {
			r.RecurringViolations = append(r.RecurringViolations, id)
		}
	}
	for path, stats := range snap.Files {
		if stats.ViolationCount >= d.threshold {
			r.UnstableModules = append(r.UnstableModules, path)
		}
	}

	seen := make(map[string]struct{})
	for _, m := range matches {
		origin := m.Policy.Origin
		if origin == "" {
			continue
		}
		if snap.Violations[m.Policy.ID] < d.threshold {
			continue
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		r.IgnoredDecisions = append(r.IgnoredDecisions, origin)
	}

	sort.Strings(r.RecurringViolations)
	sort.Strings(r.UnstableModules)
	sort.Strings(r.IgnoredDecisions)
	return r
}

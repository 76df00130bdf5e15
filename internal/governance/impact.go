package governance

import (
	"github.com/roach88/lace/internal/policy"
	"github.com/roach88/lace/internal/source"
)

// Impact lists the governance records a change to one file touches.
type Impact struct {
	Requirements []string `json:"affectedRequirements"`
	Decisions    []string `json:"affectedDecisions"`
	Policies     []string `json:"affectedPolicies"`
}

// Impact summarizes the evaluation. Policies are those with at least one violation,
// in match order without repeats.
func (e *Evaluation) Impact() Impact {
	im := Impact{
		Requirements: []string{},
		Decisions:    make([]string, 0, len(e.Decisions)),
		Policies:     []string{},
	}
	if e.Requirement != nil {
		im.Requirements = append(im.Requirements, e.Requirement.ID)
	}
	for _, d := range e.Decisions {
		im.Decisions = append(im.Decisions, d.ID)
	}

	seen := make(map[string]struct{})
	for _, m := range e.Matches {
		if !m.HasViolations() {
			continue
		}
		if _, dup := seen[m.Policy.ID]; dup {
			continue
		}
		seen[m.Policy.ID] = struct{}{}
		im.Policies = append(im.Policies, m.Policy.ID)
	}
	return im
}

// Diagnostic is one violation positioned in the source file.
type Diagnostic struct {
	Span     source.Span     `json:"span"`
	Severity policy.Severity `json:"severity"`
	PolicyID string          `json:"policy_id"`
	Message  string          `json:"message"`
}

// Diagnostics positions every violation of ev. A violation whose offending
// value is a declared import takes that import's span; others sit on the
// first line.
func (e *Evaluation) Diagnostics() []Diagnostic {
	spans := make(map[string]source.Span, len(e.Metadata.Imports))
	for _, imp := range e.Metadata.Imports {
		if _, ok := spans[imp.Value]; !ok {
			spans[imp.Value] = imp.Span
		}
	}

	out := []Diagnostic{}
	for _, m := range e.Matches {
		for _, v := range m.Violations {
			d := Diagnostic{Severity: v.Severity, PolicyID: v.PolicyID, Message: v.Message}
			if span, ok := spans[v.Offending]; ok && v.Offending != "" {
				d.Span = span
			}
			out = append(out, d)
		}
	}
	return out
}

package ledger

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lace/internal/policy"
)

// DecisionsFile is the decision ledger file name inside a .lace root.
const DecisionsFile = "decisions.yaml"

// MaxDecisions bounds how many decisions are selected for one file.
const MaxDecisions = 2

type decisionDeclaration struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Rationale       string   `yaml:"rationale"`
	AffectedModules []string `yaml:"affected_modules"`
	LinkedPolicies  []string `yaml:"linked_policies"`
}

// Decision is a normalized ledger entry with compiled module matchers.
type Decision struct {
	ID             string
	Title          string
	Rationale      string
	LinkedPolicies []string

	moduleMatchers []policy.Matcher
}

// DecisionRecord is the projection of a decision surfaced as context.
type DecisionRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
}

// Record returns the public projection of d.
func (d *Decision) Record() DecisionRecord {
	return DecisionRecord{ID: d.ID, Title: d.Title, Rationale: d.Rationale}
}

// NewDecision builds a decision entry, compiling its module globs.
// Invalid globs are reported as an error.
func NewDecision(id, title, rationale string, modules, linkedPolicies []string) (*Decision, error) {
	matchers, err := policy.CompileGlobs(nonEmpty(modules))
	if err != nil {
		return nil, err
	}
	return &Decision{
		ID:             id,
		Title:          title,
		Rationale:      rationale,
		LinkedPolicies: nonEmpty(linkedPolicies),
		moduleMatchers: matchers,
	}, nil
}

// ParseDecisions decodes a decision ledger. Entries without id or title,
// or with invalid globs, are dropped.
func ParseDecisions(data []byte) ([]*Decision, error) {
	var doc struct {
		Decisions []yaml.Node `yaml:"decisions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", DecisionsFile, err)
	}

	decisions := make([]*Decision, 0, len(doc.Decisions))
	for _, node := range doc.Decisions {
		var decl decisionDeclaration
		if err := node.Decode(&decl); err != nil {
			continue
		}
		if decl.ID == "" || decl.Title == "" {
			continue
		}
		d, err := NewDecision(decl.ID, decl.Title, decl.Rationale, decl.AffectedModules, decl.LinkedPolicies)
		if err != nil {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// SelectDecisions returns the decisions relevant to modulePath.
//
// A decision is relevant when one of its module globs matches the path, or
// when one of its linked policies is among policyIDs (case-insensitive).
// Results are de-duplicated by id, sorted by id and truncated to
// MaxDecisions, so selection does not depend on ledger order.
func SelectDecisions(entries []*Decision, modulePath string, policyIDs []string) []DecisionRecord {
	if len(entries) == 0 {
		return []DecisionRecord{}
	}

	active := make(map[string]struct{}, len(policyIDs))
	for _, id := range policyIDs {
		active[strings.ToLower(id)] = struct{}{}
	}

	seen := make(map[string]struct{})
	records := []DecisionRecord{}
	for _, d := range entries {
		if !d.matchesModule(modulePath) && !d.linksAny(active) {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		records = append(records, d.Record())
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	if len(records) > MaxDecisions {
		records = records[:MaxDecisions]
	}
	return records
}

func (d *Decision) matchesModule(modulePath string) bool {
	return policy.AnyMatches(d.moduleMatchers, modulePath)
}

func (d *Decision) linksAny(active map[string]struct{}) bool {
	for _, id := range d.LinkedPolicies {
		if _, ok := active[strings.ToLower(id)]; ok {
			return true
		}
	}
	return false
}

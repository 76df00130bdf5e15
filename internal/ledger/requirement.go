package ledger

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lace/internal/policy"
)

// RequirementsFile is the requirement graph file name inside a .lace root.
const RequirementsFile = "requirements.yaml"

// Stage is a requirement's lifecycle stage.
type Stage string

const (
	StageDevelopment Stage = "development"
	StageReview      Stage = "review"
	StageStable      Stage = "stable"
)

type requirementDeclaration struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Modules     []string `yaml:"modules"`
	Stage       Stage    `yaml:"stage"`
	Decisions   []string `yaml:"decisions"`
}

// Requirement is a normalized requirement entry.
type Requirement struct {
	ID          string
	Description string
	Stage       Stage
	Decisions   []string

	moduleMatchers []policy.Matcher
}

// RequirementRecord is the projection of a requirement surfaced as context.
type RequirementRecord struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Stage       Stage  `json:"stage"`
}

// NewRequirement builds a requirement entry. An empty stage defaults to
// development.
func NewRequirement(id, description string, stage Stage, modules []string) (*Requirement, error) {
	matchers, err := policy.CompileGlobs(nonEmpty(modules))
	if err != nil {
		return nil, err
	}
	if stage == "" {
		stage = StageDevelopment
	}
	return &Requirement{
		ID:             id,
		Description:    description,
		Stage:          stage,
		moduleMatchers: matchers,
	}, nil
}

// Record returns the public projection of r.
func (r *Requirement) Record() RequirementRecord {
	return RequirementRecord{ID: r.ID, Description: r.Description, Stage: r.Stage}
}

// ParseRequirements decodes a requirement graph. Entries without id or
// description, or with invalid globs, are dropped.
func ParseRequirements(data []byte) ([]*Requirement, error) {
	var doc struct {
		Requirements []yaml.Node `yaml:"requirements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RequirementsFile, err)
	}

	requirements := make([]*Requirement, 0, len(doc.Requirements))
	for _, node := range doc.Requirements {
		var decl requirementDeclaration
		if err := node.Decode(&decl); err != nil {
			continue
		}
		if decl.ID == "" || decl.Description == "" {
			continue
		}
		r, err := NewRequirement(decl.ID, decl.Description, decl.Stage, decl.Modules)
		if err != nil {
			continue
		}
		r.Decisions = nonEmpty(decl.Decisions)
		requirements = append(requirements, r)
	}
	return requirements, nil
}

// SelectRequirement picks the single requirement for modulePath.
//
// Stable requirements are resolved and never selected. Among the remaining
// requirements with a matching module glob, the lexicographically smallest
// id wins. Returns nil when nothing is eligible.
func SelectRequirement(entries []*Requirement, modulePath string) *RequirementRecord {
	var eligible []*Requirement
	for _, r := range entries {
		if r.Stage == StageStable {
			continue
		}
		if !policy.AnyMatches(r.moduleMatchers, modulePath) {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].ID < eligible[j].ID
	})
	record := eligible[0].Record()
	return &record
}

package policy

import (
	"github.com/roach88/lace/internal/source"
)

// Severity is the enforcement level of a policy.
type Severity string

const (
	SeverityAdvisory Severity = "advisory"
	SeverityStrict   Severity = "strict"
)

// DefaultSeverity applies when a declaration omits or misspells severity.
const DefaultSeverity = SeverityAdvisory

// Rank orders severities for rendering: strict sorts before advisory.
func (s Severity) Rank() int {
	if s == SeverityStrict {
		return 0
	}
	return 1
}

// ParseSeverity maps a declared value onto the two-value enum.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityStrict, SeverityAdvisory:
		return Severity(s)
	default:
		return DefaultSeverity
	}
}

// ViolationKind identifies which rule of a policy was breached.
type ViolationKind string

const (
	ForbiddenImport ViolationKind = "forbidden-import"
	MissingImport   ViolationKind = "missing-import"
	ForbiddenCall   ViolationKind = "forbidden-call"
	MissingCall     ViolationKind = "missing-call"
)

// Scope restricts where a policy applies.
type Scope struct {
	ModuleGlob    string `yaml:"module_glob,omitempty" json:"module_glob,omitempty"`
	FunctionRegex string `yaml:"function_regex,omitempty" json:"function_regex,omitempty"`
}

// Declaration is one raw entry of the policies list as written in YAML.
type Declaration struct {
	ID               string   `yaml:"id"`
	Description      string   `yaml:"description"`
	Language         string   `yaml:"language"`
	Scope            *Scope   `yaml:"scope"`
	ForbiddenImports []string `yaml:"forbidden_imports"`
	RequiredImports  []string `yaml:"required_imports"`
	ForbiddenCalls   []string `yaml:"forbidden_calls"`
	RequiredCalls    []string `yaml:"required_calls"`
	Severity         string   `yaml:"severity"`
	Origin           string   `yaml:"origin"`
}

// CIConfig holds the optional CI gating thresholds of a policy file.
type CIConfig struct {
	MaxContextInflation *float64 `yaml:"maxContextInflation" json:"maxContextInflation,omitempty"`
	MaxEntropyScore     *float64 `yaml:"maxEntropyScore" json:"maxEntropyScore,omitempty"`
	FailOnDecisionDrift bool     `yaml:"failOnDecisionDrift" json:"failOnDecisionDrift,omitempty"`
}

// Policy is a normalized, immutable policy with its matchers compiled.
type Policy struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Language    string   `json:"language"`
	Scope       Scope    `json:"scope"`
	Origin      string   `json:"origin,omitempty"`

	ForbiddenImports []string `json:"forbidden_imports,omitempty"`
	RequiredImports  []string `json:"required_imports,omitempty"`
	ForbiddenCalls   []string `json:"forbidden_calls,omitempty"`
	RequiredCalls    []string `json:"required_calls,omitempty"`

	moduleMatcher           Matcher
	functionMatcher         Matcher
	forbiddenImportMatchers []Matcher
	requiredImportMatchers  []Matcher
	forbiddenCallSet        map[string]struct{}
}

// Violation is one detected breach of one rule within one policy.
type Violation struct {
	PolicyID  string        `json:"policy_id"`
	Severity  Severity      `json:"severity"`
	Kind      ViolationKind `json:"type"`
	Message   string        `json:"message"`
	Offending string        `json:"offending,omitempty"`
}

// Match is a policy that applies to a file, with its violations.
// A match may carry zero violations.
type Match struct {
	Policy     *Policy     `json:"policy"`
	Violations []Violation `json:"violations"`
}

// HasViolations reports whether the match carries at least one violation.
func (m Match) HasViolations() bool {
	return len(m.Violations) > 0
}

// Metadata is the parsed file the policies are evaluated against.
type Metadata = source.FileMetadata

// CountBySeverity counts violations of the given severity across matches.
func CountBySeverity(matches []Match, severity Severity) int {
	count := 0
	for _, m := range matches {
		for _, v := range m.Violations {
			if v.Severity == severity {
				count++
			}
		}
	}
	return count
}

// IDs returns the policy ids of matches in order.
func IDs(matches []Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Policy.ID
	}
	return ids
}

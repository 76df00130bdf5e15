// Package contextblock renders the size-bounded governance comment block
// surfaced to an editor or assistant for one file.
package contextblock

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/lace/internal/ledger"
	"github.com/roach88/lace/internal/policy"
)

const (
	// MaxTokens is the token budget of one block.
	MaxTokens = 400
	// CharsPerToken is the fixed characters-per-token estimate.
	CharsPerToken = 4
	// MaxChars is the character budget derived from MaxTokens.
	MaxChars = MaxTokens * CharsPerToken
	// MaxInvariants bounds the invariant section.
	MaxInvariants = 5

	// Header opens every block.
	Header = "// LACE CONTEXT:"

	none             = "// - (none)"
	sectionDecisions = "// Decisions Affecting Module:"
	sectionViolation = "// Violations:"
)

// Input is everything one block is compiled from.
type Input struct {
	Metadata    policy.Metadata
	Matches     []policy.Match
	Decisions   []ledger.DecisionRecord
	Requirement *ledger.RequirementRecord
}

// Result is a compiled block plus what made it in.
type Result struct {
	Text                string `json:"text"`
	InvariantsIncluded  int    `json:"invariantsIncluded"`
	DecisionsIncluded   int    `json:"decisionsIncluded"`
	RequirementIncluded bool   `json:"requirementIncluded"`
	TruncatedItems      int    `json:"truncatedItems"`
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// builder appends lines while the running length, counting one newline
// between lines, stays within MaxChars.
type builder struct {
	lines     []string
	length    int
	truncated int
}

func (b *builder) push(line string) bool {
	addition := len(line)
	if len(b.lines) > 0 {
		addition++
	}
	if b.length+addition > MaxChars {
		b.truncated++
		return false
	}
	b.lines = append(b.lines, line)
	b.length += addition
	return true
}

// Compile renders the block for in.
//
// Sections are emitted in a fixed order. Within a section, the first line
// that does not fit ends the section; later sections are still attempted.
// Every refused line counts towards TruncatedItems.
func Compile(in Input) Result {
	var b builder
	md := in.Metadata

	language := md.LanguageID
	if language == "" {
		language = "unknown"
	}
	function := "N/A"
	if name, ok := md.ActiveName(); ok {
		function = name
	}

	b.push(Header)
	b.push("// Language: " + language)
	b.push("// File: " + md.ModulePath)
	b.push("// Function: " + function)

	var res Result

	b.push("// Applicable Invariants:")
	invariants := selectInvariants(in.Matches)
	if len(invariants) == 0 {
		b.push(none)
	}
	for _, p := range invariants {
		line := fmt.Sprintf("// - %s %s: %s", strings.ToUpper(string(p.Severity)), p.ID, p.Description)
		if !b.push(line) {
			break
		}
		res.InvariantsIncluded++
	}

	b.push(sectionDecisions)
	decisions := sortedDecisions(in.Decisions)
	if len(decisions) == 0 {
		b.push(none)
	}
	for _, d := range decisions {
		if !b.push(fmt.Sprintf("// - %s: %s", d.ID, d.Title)) {
			break
		}
		res.DecisionsIncluded++
	}

	b.push("// Requirement:")
	if in.Requirement == nil {
		b.push(none)
	} else {
		res.RequirementIncluded = b.push(fmt.Sprintf("// - %s: %s", in.Requirement.ID, in.Requirement.Description))
	}

	b.push(sectionViolation)
	violations := sortedViolations(in.Matches)
	if len(violations) == 0 {
		b.push(none)
	}
	for _, v := range violations {
		if !b.push(fmt.Sprintf("// - %s: %s", v.PolicyID, v.Message)) {
			break
		}
	}

	if b.truncated > 0 {
		b.push(fmt.Sprintf("// ... %d additional items omitted", b.truncated))
	}

	res.Text = strings.Join(b.lines, "\n")
	res.TruncatedItems = b.truncated
	return res
}

func selectInvariants(matches []policy.Match) []*policy.Policy {
	policies := make([]*policy.Policy, 0, len(matches))
	for _, m := range matches {
		policies = append(policies, m.Policy)
	}
	sort.SliceStable(policies, func(i, j int) bool {
		a, b := policies[i], policies[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.ID < b.ID
	})
	if len(policies) > MaxInvariants {
		policies = policies[:MaxInvariants]
	}
	return policies
}

func sortedDecisions(records []ledger.DecisionRecord) []ledger.DecisionRecord {
	out := append([]ledger.DecisionRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	if len(out) > ledger.MaxDecisions {
		out = out[:ledger.MaxDecisions]
	}
	return out
}

func sortedViolations(matches []policy.Match) []policy.Violation {
	var out []policy.Violation
	for _, m := range matches {
		out = append(out, m.Violations...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.PolicyID < b.PolicyID
	})
	return out
}

// ShouldSkip reports whether a block carries nothing worth inserting:
// no invariants made it in, and there are no decisions, no requirement
// and no violations.
func ShouldSkip(res Result, in Input) bool {
	if res.InvariantsIncluded > 0 || len(in.Decisions) > 0 || in.Requirement != nil {
		return false
	}
	for _, m := range in.Matches {
		if m.HasViolations() {
			return false
		}
	}
	return true
}

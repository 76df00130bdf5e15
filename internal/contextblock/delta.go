package contextblock

import (
	"strings"
)

// NoChangeNote replaces the body of a block whose decisions and violations
// are unchanged since the previous one.
const NoChangeNote = "// Note: No SDLC changes detected since last generation."

// Delta describes a freshly compiled block for comparison with a previous one.
type Delta struct {
	Language   string
	File       string
	Function   string
	Decisions  []string // "ID: title"
	Violations []string // "policyID: message"
	Full       string
}

// DeltaFor builds the comparison data for a compiled block.
func DeltaFor(in Input, res Result) Delta {
	language := in.Metadata.LanguageID
	if language == "" {
		language = "unknown"
	}
	function := "N/A"
	if name, ok := in.Metadata.ActiveName(); ok {
		function = name
	}

	d := Delta{
		Language: language,
		File:     in.Metadata.ModulePath,
		Function: function,
		Full:     res.Text,
	}
	for _, rec := range sortedDecisions(in.Decisions) {
		d.Decisions = append(d.Decisions, rec.ID+": "+rec.Title)
	}
	for _, v := range sortedViolations(in.Matches) {
		d.Violations = append(d.Violations, v.PolicyID+": "+v.Message)
	}
	return d
}

// Optimize returns a short header-only block when previous lists the same
// decisions and violations as d (compared as sets), and d.Full otherwise.
// An empty previous block always yields d.Full.
func Optimize(previous string, d Delta) string {
	previous = strings.TrimSpace(previous)
	if previous == "" {
		return d.Full
	}

	decisions, violations := summarize(previous)
	if !sameSet(decisions, d.Decisions) || !sameSet(violations, d.Violations) {
		return d.Full
	}

	return strings.Join([]string{
		Header,
		"// Language: " + d.Language,
		"// File: " + d.File,
		"// Function: " + d.Function,
		NoChangeNote,
	}, "\n")
}

func summarize(block string) (decisions, violations []string) {
	var section *[]string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "// Decisions Affecting Module"):
			section = &decisions
			continue
		case strings.HasPrefix(line, "// Violations"):
			section = &violations
			continue
		case !strings.HasPrefix(line, "// - "):
			// Any other header closes the current section.
			section = nil
			continue
		}
		if section == nil || !strings.Contains(line, ":") {
			continue
		}
		*section = append(*section, strings.TrimSpace(line[4:]))
	}
	return decisions, violations
}

func sameSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, v := range a {
		left[v] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, v := range b {
		right[v] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for v := range left {
		if _, ok := right[v]; !ok {
			return false
		}
	}
	return true
}

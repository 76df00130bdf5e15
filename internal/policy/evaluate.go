package policy

import (
	"fmt"
	"strings"
)

// Evaluate returns one Match per policy that applies to the file, in policy
// declaration order.
//
// A policy applies when its language is "all" or equals the file's language,
// and its scope admits the file:
//  1. module glob (if set) must match the module path
//  2. function regex (if set) must match the active symbol name; a file
//     without an active symbol is out of scope
//
// Rules are then checked independently:
//   - forbidden imports: the first import (parse order) matching any
//     forbidden glob yields one violation
//   - required imports: each pattern no import satisfies yields one violation
//   - forbidden calls: the first called identifier in the forbidden set
//     (case-insensitive) yields one violation
//   - required calls: each call never made yields one violation
func Evaluate(policies []*Policy, md Metadata) []Match {
	language := strings.ToLower(md.LanguageID)
	if language == "" {
		language = "all"
	}
	activeName, hasActive := md.ActiveName()
	imports := md.ImportValues()

	calls := make([]string, len(md.FunctionCalls))
	for i, call := range md.FunctionCalls {
		calls[i] = strings.ToLower(call)
	}

	var results []Match
	for _, p := range policies {
		if p.Language != "all" && p.Language != language {
			continue
		}
		if !p.inScope(md.ModulePath, activeName, hasActive) {
			continue
		}

		violations := []Violation{}
		violations = append(violations, p.checkForbiddenImports(imports)...)
		violations = append(violations, p.checkRequiredImports(imports)...)
		violations = append(violations, p.checkForbiddenCalls(md.FunctionCalls, calls)...)
		violations = append(violations, p.checkRequiredCalls(calls)...)

		results = append(results, Match{Policy: p, Violations: violations})
	}

	return results
}

func (p *Policy) inScope(modulePath, activeName string, hasActive bool) bool {
	if p.moduleMatcher != nil && !p.moduleMatcher.Matches(modulePath) {
		return false
	}
	if p.functionMatcher != nil {
		if !hasActive {
			return false
		}
		return p.functionMatcher.Matches(activeName)
	}
	return true
}

func (p *Policy) checkForbiddenImports(imports []string) []Violation {
	if len(p.forbiddenImportMatchers) == 0 {
		return nil
	}
	for _, imp := range imports {
		if AnyMatches(p.forbiddenImportMatchers, imp) {
			return []Violation{p.violation(ForbiddenImport, imp,
				fmt.Sprintf("Forbidden import %q matched policy %s", imp, p.ID))}
		}
	}
	return nil
}

func (p *Policy) checkRequiredImports(imports []string) []Violation {
	var out []Violation
	for i, matcher := range p.requiredImportMatchers {
		satisfied := false
		for _, imp := range imports {
			if matcher.Matches(imp) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			required := p.RequiredImports[i]
			out = append(out, p.violation(MissingImport, required,
				fmt.Sprintf("Required import %q missing for policy %s", required, p.ID)))
		}
	}
	return out
}

func (p *Policy) checkForbiddenCalls(original, lowered []string) []Violation {
	if len(p.forbiddenCallSet) == 0 {
		return nil
	}
	for i, call := range lowered {
		if _, ok := p.forbiddenCallSet[call]; ok {
			offending := original[i]
			return []Violation{p.violation(ForbiddenCall, offending,
				fmt.Sprintf("Forbidden call %q detected for policy %s", offending, p.ID))}
		}
	}
	return nil
}

func (p *Policy) checkRequiredCalls(lowered []string) []Violation {
	var out []Violation
	for _, required := range p.RequiredCalls {
		satisfied := false
		for _, call := range lowered {
			if call == required {
				satisfied = true
				break
			}
		}
		if !satisfied {
			out = append(out, p.violation(MissingCall, required,
				fmt.Sprintf("Required call %q missing for policy %s", required, p.ID)))
		}
	}
	return out
}

func (p *Policy) violation(kind ViolationKind, offending, message string) Violation {
	return Violation{
		PolicyID:  p.ID,
		Severity:  p.Severity,
		Kind:      kind,
		Message:   message,
		Offending: offending,
	}
}

package policy

import (
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher tests a candidate string (module path, import value, symbol name).
type Matcher interface {
	Matches(candidate string) bool
}

// GlobMatcher matches slash-separated paths against a glob pattern.
// "**" crosses directory boundaries; dot files are matched like any other.
type GlobMatcher struct {
	pattern string
}

// NewGlobMatcher validates pattern and returns its matcher.
func NewGlobMatcher(pattern string) (*GlobMatcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return &GlobMatcher{pattern: pattern}, nil
}

// Matches implements Matcher.
func (g *GlobMatcher) Matches(candidate string) bool {
	ok, err := doublestar.Match(g.pattern, candidate)
	return err == nil && ok
}

// Pattern returns the source pattern.
func (g *GlobMatcher) Pattern() string {
	return g.pattern
}

// RegexMatcher matches when the expression finds a match anywhere in the
// candidate (unanchored, like a search).
type RegexMatcher struct {
	re *regexp.Regexp
}

// NewRegexMatcher compiles expr and returns its matcher.
func NewRegexMatcher(expr string) (*RegexMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", expr, err)
	}
	return &RegexMatcher{re: re}, nil
}

// Matches implements Matcher.
func (r *RegexMatcher) Matches(candidate string) bool {
	return r.re.MatchString(candidate)
}

// Pattern returns the source expression.
func (r *RegexMatcher) Pattern() string {
	return r.re.String()
}

// CompileGlobs builds one matcher per pattern, in order.
func CompileGlobs(patterns []string) ([]Matcher, error) {
	matchers := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := NewGlobMatcher(p)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// AnyMatches reports whether any matcher accepts candidate.
func AnyMatches(matchers []Matcher, candidate string) bool {
	for _, m := range matchers {
		if m.Matches(candidate) {
			return true
		}
	}
	return false
}

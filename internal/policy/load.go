package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lace/internal/filecache"
)

// ErrInvalidPolicyFile is returned when a policy file is not a mapping
// with a policies list.
var ErrInvalidPolicyFile = errors.New("invalid policies file")

// Set is the decoded content of one policy file.
type Set struct {
	Policies []*Policy
	CI       *CIConfig
}

// Engine loads and caches policy files. One Engine belongs to one project.
type Engine struct {
	cache  *filecache.Cache[*Set]
	logger *slog.Logger
}

// NewEngine creates an engine with an empty cache.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:  filecache.New[*Set](),
		logger: logger,
	}
}

// Load returns the normalized policies of path, reusing the cached set while
// the file's modification time is unchanged.
func (e *Engine) Load(path string) ([]*Policy, error) {
	set, err := e.loadSet(path)
	if err != nil {
		return nil, err
	}
	return set.Policies, nil
}

// CIConfig returns the ci block of path, or nil when none is declared.
func (e *Engine) CIConfig(path string) (*CIConfig, error) {
	set, err := e.loadSet(path)
	if err != nil {
		return nil, err
	}
	return set.CI, nil
}

func (e *Engine) loadSet(path string) (*Set, error) {
	return e.cache.Load(path, func(data []byte) (*Set, error) {
		set, err := Parse(data, e.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicyFile, filepath.Base(path), err)
		}
		e.logger.Debug("policies loaded", "path", path, "count", len(set.Policies))
		return set, nil
	})
}

// Clear invalidates the cached entry of one policy file.
func (e *Engine) Clear(path string) {
	e.cache.Clear(path)
}

// ClearAll invalidates every cached policy file.
func (e *Engine) ClearAll() {
	e.cache.ClearAll()
}

// Parse decodes a policy document. The document must be a mapping with a
// policies sequence; entries that cannot be normalized are dropped.
func Parse(data []byte, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, errors.New("empty document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errors.New("document is not a mapping")
	}

	policiesNode := mappingValue(doc, "policies")
	if policiesNode == nil || policiesNode.Kind != yaml.SequenceNode {
		return nil, errors.New("missing policies list")
	}

	set := &Set{Policies: make([]*Policy, 0, len(policiesNode.Content))}
	for i, item := range policiesNode.Content {
		var decl Declaration
		if err := item.Decode(&decl); err != nil {
			logger.Debug("dropping malformed policy entry", "index", i, "error", err)
			continue
		}
		p, err := Normalize(decl)
		if err != nil {
			logger.Warn("dropping policy with invalid pattern", "policy", decl.ID, "error", err)
			continue
		}
		if p == nil {
			continue
		}
		set.Policies = append(set.Policies, p)
	}

	if ciNode := mappingValue(doc, "ci"); ciNode != nil && ciNode.Kind == yaml.MappingNode {
		var ci CIConfig
		if err := ciNode.Decode(&ci); err != nil {
			return nil, fmt.Errorf("ci: %w", err)
		}
		set.CI = &ci
	}

	return set, nil
}

// Normalize converts a declaration into a Policy. It returns (nil, nil) for
// entries lacking an id or description, and an error when a pattern does
// not compile.
func Normalize(decl Declaration) (*Policy, error) {
	if decl.ID == "" || decl.Description == "" {
		return nil, nil
	}

	scope := Scope{}
	if decl.Scope != nil {
		scope = *decl.Scope
	}

	language := strings.ToLower(decl.Language)
	if language == "" {
		language = "all"
	}

	p := &Policy{
		ID:               decl.ID,
		Description:      decl.Description,
		Severity:         ParseSeverity(decl.Severity),
		Language:         language,
		Scope:            scope,
		Origin:           decl.Origin,
		ForbiddenImports: nonEmpty(decl.ForbiddenImports),
		RequiredImports:  nonEmpty(decl.RequiredImports),
		ForbiddenCalls:   lowerUnique(decl.ForbiddenCalls),
		RequiredCalls:    lowerUnique(decl.RequiredCalls),
	}

	var err error
	if scope.ModuleGlob != "" {
		if p.moduleMatcher, err = NewGlobMatcher(scope.ModuleGlob); err != nil {
			return nil, err
		}
	}
	if scope.FunctionRegex != "" {
		if p.functionMatcher, err = NewRegexMatcher(scope.FunctionRegex); err != nil {
			return nil, err
		}
	}
	if p.forbiddenImportMatchers, err = CompileGlobs(p.ForbiddenImports); err != nil {
		return nil, err
	}
	if p.requiredImportMatchers, err = CompileGlobs(p.RequiredImports); err != nil {
		return nil, err
	}

	p.forbiddenCallSet = make(map[string]struct{}, len(p.ForbiddenCalls))
	for _, call := range p.ForbiddenCalls {
		p.forbiddenCallSet[call] = struct{}{}
	}

	return p, nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
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

// lowerUnique lower-cases values and drops empties and repeats, keeping
// first-seen order so missing-call violations are reported deterministically.
func lowerUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
	}
	return out
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lace/internal/ledger"
	"github.com/roach88/lace/internal/policy"
)

//go:embed schema.cue
var schemaCUE string

// Validation error codes (E200-E299)
const (
	ErrInvalidDocument  = "E201" // file is not valid YAML or lacks its top-level shape
	ErrSchema           = "E202" // value does not satisfy the schema
	ErrDuplicateID      = "E203" // id declared twice in one file
	ErrMissingReference = "E204" // reference to an undeclared id
	ErrInvalidGlob      = "E205" // glob pattern does not compile
	ErrInvalidRegex     = "E206" // function regex does not compile
)

// ValidationError is one problem found in a declaration file.
type ValidationError struct {
	File    string `json:"file"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.File, e.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Code, e.File, e.Field, e.Message)
}

type rawDecision struct {
	ID              string   `yaml:"id"`
	AffectedModules []string `yaml:"affected_modules"`
	LinkedPolicies  []string `yaml:"linked_policies"`
}

type rawRequirement struct {
	ID        string   `yaml:"id"`
	Modules   []string `yaml:"modules"`
	Decisions []string `yaml:"decisions"`
}

// Validate checks every declaration file under rootDir and returns all
// problems found, sorted. It does not stop at the first error.
//
// Missing decision, requirement and settings files are valid. A missing
// policies file is reported. Only I/O failures other than a missing file
// are returned as error.
func Validate(rootDir string) ([]ValidationError, error) {
	v := &validator{ctx: cuecontext.New()}
	v.schema = v.ctx.CompileString(schemaCUE)
	if err := v.schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	policies, err := v.policyFile(rootDir)
	if err != nil {
		return nil, err
	}
	decisions, err := v.decisionFile(rootDir, policies)
	if err != nil {
		return nil, err
	}
	if err := v.requirementFile(rootDir, decisions); err != nil {
		return nil, err
	}
	if _, err := v.load(rootDir, SettingsFile, "#Settings"); err != nil {
		return nil, err
	}

	sort.SliceStable(v.errs, func(i, j int) bool {
		return v.errs[i].Error() < v.errs[j].Error()
	})
	return v.errs, nil
}

type validator struct {
	ctx    *cue.Context
	schema cue.Value
	errs   []ValidationError
}

func (v *validator) add(file, field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		File:    file,
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// load reads and decodes one file and unifies it with a schema definition.
// It returns the document's top-level node, or nil when the file is missing
// or not decodable.
func (v *validator) load(rootDir, file, definition string) (*yaml.Node, error) {
	data, err := os.ReadFile(filepath.Join(rootDir, file))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		v.add(file, "", ErrInvalidDocument, "invalid YAML: %v", err)
		return nil, nil
	}
	var doc any
	if err := node.Decode(&doc); err != nil {
		v.add(file, "", ErrInvalidDocument, "invalid YAML: %v", err)
		return nil, nil
	}
	if doc == nil {
		doc = map[string]any{}
	}

	value := v.ctx.Encode(doc)
	if err := value.Err(); err != nil {
		v.add(file, "", ErrInvalidDocument, "unsupported YAML value: %v", err)
		return nil, nil
	}
	unified := v.schema.LookupPath(cue.ParsePath(definition)).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			v.add(file, strings.Join(e.Path(), "."), ErrSchema, format, args...)
		}
	}

	if len(node.Content) == 0 {
		return nil, nil
	}
	return node.Content[0], nil
}

func (v *validator) policyFile(rootDir string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	data, err := os.ReadFile(filepath.Join(rootDir, PoliciesFile))
	if errors.Is(err, fs.ErrNotExist) {
		v.add(PoliciesFile, "", ErrInvalidDocument, "file not found")
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", PoliciesFile, err)
	}
	if _, err := policy.Parse(data, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		v.add(PoliciesFile, "", ErrInvalidDocument, "%v", err)
		return ids, nil
	}

	root, err := v.load(rootDir, PoliciesFile, "#PolicyFile")
	if err != nil || root == nil {
		return ids, err
	}

	for i, entry := range sequence(root, "policies") {
		var decl policy.Declaration
		if entry.Decode(&decl) != nil {
			continue
		}
		field := fmt.Sprintf("policies[%d]", i)
		if decl.ID != "" {
			if _, dup := ids[decl.ID]; dup {
				v.add(PoliciesFile, field+".id", ErrDuplicateID, "Duplicate policy id: %s", decl.ID)
			}
			ids[decl.ID] = struct{}{}
		}
		if decl.Scope != nil {
			v.checkGlobs(PoliciesFile, field+".scope.module_glob", decl.Scope.ModuleGlob)
			if decl.Scope.FunctionRegex != "" {
				if _, err := policy.NewRegexMatcher(decl.Scope.FunctionRegex); err != nil {
					v.add(PoliciesFile, field+".scope.function_regex", ErrInvalidRegex,
						"Invalid function regex: %s", decl.Scope.FunctionRegex)
				}
			}
		}
		v.checkGlobs(PoliciesFile, field+".forbidden_imports", decl.ForbiddenImports...)
		v.checkGlobs(PoliciesFile, field+".required_imports", decl.RequiredImports...)
	}
	return ids, nil
}

func (v *validator) decisionFile(rootDir string, policies map[string]struct{}) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	root, err := v.load(rootDir, ledger.DecisionsFile, "#DecisionFile")
	if err != nil || root == nil {
		return ids, err
	}

	for i, entry := range sequence(root, "decisions") {
		var d rawDecision
		if entry.Decode(&d) != nil {
			continue
		}
		field := fmt.Sprintf("decisions[%d]", i)
		if d.ID != "" {
			if _, dup := ids[d.ID]; dup {
				v.add(ledger.DecisionsFile, field+".id", ErrDuplicateID, "Duplicate decision id: %s", d.ID)
			}
			ids[d.ID] = struct{}{}
		}
		for _, p := range d.LinkedPolicies {
			if _, ok := policies[p]; !ok {
				v.add(ledger.DecisionsFile, field+".linked_policies", ErrMissingReference,
					"Decision %s references missing policy %s", d.ID, p)
			}
		}
		v.checkGlobs(ledger.DecisionsFile, field+".affected_modules", d.AffectedModules...)
	}
	return ids, nil
}

func (v *validator) requirementFile(rootDir string, decisions map[string]struct{}) error {
	root, err := v.load(rootDir, ledger.RequirementsFile, "#RequirementFile")
	if err != nil || root == nil {
		return err
	}

	ids := make(map[string]struct{})
	for i, entry := range sequence(root, "requirements") {
		var r rawRequirement
		if entry.Decode(&r) != nil {
			continue
		}
		field := fmt.Sprintf("requirements[%d]", i)
		if r.ID != "" {
			if _, dup := ids[r.ID]; dup {
				v.add(ledger.RequirementsFile, field+".id", ErrDuplicateID, "Duplicate requirement id: %s", r.ID)
			}
			ids[r.ID] = struct{}{}
		}
		for _, d := range r.Decisions {
			if _, ok := decisions[d]; !ok {
				v.add(ledger.RequirementsFile, field+".decisions", ErrMissingReference,
					"Requirement %s references missing decision %s", r.ID, d)
			}
		}
		v.checkGlobs(ledger.RequirementsFile, field+".modules", r.Modules...)
	}
	return nil
}

func (v *validator) checkGlobs(file, field string, patterns ...string) {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := policy.NewGlobMatcher(p); err != nil {
			v.add(file, field, ErrInvalidGlob, "Invalid glob pattern: %s", p)
		}
	}
}

// sequence returns the items of the list under key in a mapping node.
func sequence(mapping *yaml.Node, key string) []*yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key && mapping.Content[i+1].Kind == yaml.SequenceNode {
			return mapping.Content[i+1].Content
		}
	}
	return nil
}

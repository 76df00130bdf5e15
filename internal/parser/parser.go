// Package parser builds FileMetadata from files on disk for the CLI.
//
// C-family, Python and shell files are scanned line by line with regular
// expressions. Go files are parsed with go/parser. Every language gets its
// called identifiers from the same call-site expression.
package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lace/internal/source"
)

// Language identifiers produced by DetectLanguage.
const (
	LanguageCPP     = "cpp"
	LanguagePython  = "python"
	LanguageShell   = "shellscript"
	LanguageGo      = "go"
	LanguageUnknown = "unknown"
)

var languageByExt = map[string]string{
	".c":    LanguageCPP,
	".cc":   LanguageCPP,
	".cpp":  LanguageCPP,
	".h":    LanguageCPP,
	".hh":   LanguageCPP,
	".hpp":  LanguageCPP,
	".py":   LanguagePython,
	".sh":   LanguageShell,
	".bash": LanguageShell,
	".go":   LanguageGo,
}

var (
	includeRe     = regexp.MustCompile(`^#\s*include\s*([<"])([^>"]+)`)
	pyFromRe      = regexp.MustCompile(`^from\s+([\w.]+)`)
	pyImportRe    = regexp.MustCompile(`^import\s+([\w.]+)`)
	shellSourceRe = regexp.MustCompile(`^(source|\.)\s+(\S+)`)
	callRe        = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// Keywords that look like calls in C-like syntax.
var ignoredCalls = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "return": {},
	"catch": {}, "sizeof": {}, "function": {}, "class": {},
}

// DetectLanguage maps a file extension to a language id.
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LanguageUnknown
}

// ModulePath returns path relative to projectDir, slash-separated and in
// Unicode NFC form.
func ModulePath(path, projectDir string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(projectDir, abs)
	if err != nil {
		return "", fmt.Errorf("module path of %s: %w", path, err)
	}
	return norm.NFC.String(filepath.ToSlash(rel)), nil
}

// Build reads path and returns its metadata. projectDir is the directory
// containing the .lace directory.
func Build(path, projectDir string) (source.FileMetadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return source.FileMetadata{}, fmt.Errorf("read %s: %w", path, err)
	}
	modulePath, err := ModulePath(path, projectDir)
	if err != nil {
		return source.FileMetadata{}, err
	}
	return Parse(content, modulePath, DetectLanguage(path)), nil
}

// Parse extracts metadata from file content.
func Parse(content []byte, modulePath, languageID string) source.FileMetadata {
	md := source.FileMetadata{
		ModulePath: modulePath,
		LanguageID: languageID,
	}

	if languageID == LanguageGo {
		if parseGo(content, &md) {
			return md
		}
	}

	md.Imports = scanImports(string(content), languageID)
	md.FunctionCalls = scanCalls(string(content))
	return md
}

func scanImports(text, languageID string) []source.Import {
	imports := []source.Import{}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for index, line := range lines {
		trimmed := strings.TrimSpace(line)
		var value string
		bracketed := false

		switch languageID {
		case LanguageCPP:
			if m := includeRe.FindStringSubmatch(trimmed); m != nil {
				value = m[2]
				bracketed = m[1] == "<"
			}
		case LanguagePython:
			if m := pyFromRe.FindStringSubmatch(trimmed); m != nil {
				value = m[1]
			} else if m := pyImportRe.FindStringSubmatch(trimmed); m != nil {
				value = m[1]
			}
		case LanguageShell:
			if m := shellSourceRe.FindStringSubmatch(trimmed); m != nil {
				value = m[2]
			}
		}
		if value == "" {
			continue
		}

		column := strings.Index(line, value)
		imports = append(imports, source.Import{
			Value:     value,
			Bracketed: bracketed,
			Span: source.Span{
				StartLine:   index,
				StartColumn: column,
				EndLine:     index,
				EndColumn:   column + len(value),
			},
		})
	}
	return imports
}

// scanCalls returns called identifiers, unique, in first-seen order.
func scanCalls(text string) []string {
	seen := make(map[string]struct{})
	calls := []string{}
	for _, m := range callRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, skip := ignoredCalls[name]; skip {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		calls = append(calls, name)
	}
	return calls
}

// parseGo fills imports, symbols and calls from the Go AST. It reports
// false when the file does not parse, leaving md for the regex scan.
func parseGo(content []byte, md *source.FileMetadata) bool {
	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, "", content, goparser.SkipObjectResolution)
	if err != nil {
		return false
	}

	span := func(from, to token.Pos) source.Span {
		start, end := fset.Position(from), fset.Position(to)
		return source.Span{
			StartLine:   start.Line - 1,
			StartColumn: start.Column - 1,
			EndLine:     end.Line - 1,
			EndColumn:   end.Column - 1,
		}
	}

	md.Imports = make([]source.Import, 0, len(file.Imports))
	for _, spec := range file.Imports {
		value := strings.Trim(spec.Path.Value, "`\"")
		md.Imports = append(md.Imports, source.Import{
			Value: value,
			Span:  span(spec.Path.Pos(), spec.Path.End()),
		})
	}

	md.Symbols = []source.Symbol{}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := source.SymbolFunction
			if d.Recv != nil {
				kind = source.SymbolMethod
			}
			md.Symbols = append(md.Symbols, source.Symbol{
				Name: d.Name.Name,
				Kind: kind,
				Span: span(d.Pos(), d.End()),
			})
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, s := range d.Specs {
				ts := s.(*ast.TypeSpec)
				md.Symbols = append(md.Symbols, source.Symbol{
					Name: ts.Name.Name,
					Kind: source.SymbolClass,
					Span: span(ts.Pos(), ts.End()),
				})
			}
		}
	}

	seen := make(map[string]struct{})
	md.FunctionCalls = []string{}
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		var name string
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			name = fn.Name
		case *ast.SelectorExpr:
			name = fn.Sel.Name
		}
		if name == "" {
			return true
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			md.FunctionCalls = append(md.FunctionCalls, name)
		}
		return true
	})
	return true
}

// SymbolAt returns the innermost symbol whose span contains line, or nil.
func SymbolAt(symbols []source.Symbol, line int) *source.Symbol {
	var best *source.Symbol
	for i := range symbols {
		s := &symbols[i]
		if line < s.Span.StartLine || line > s.Span.EndLine {
			continue
		}
		if best == nil || s.Span.StartLine >= best.Span.StartLine {
			best = s
		}
	}
	return best
}

// SymbolNamed returns the first symbol called name. When the file has no
// symbol table, a bare function symbol with that name is returned.
func SymbolNamed(symbols []source.Symbol, name string) *source.Symbol {
	for i := range symbols {
		if symbols[i].Name == name {
			s := symbols[i]
			return &s
		}
	}
	return &source.Symbol{Name: name, Kind: source.SymbolFunction}
}

// Package source defines the parsed-file metadata consumed by the governance
// pipeline.
//
// Metadata is produced outside the core (see internal/parser for the CLI's
// reference producer, or an editor integration). The core only relies on the
// shapes declared here and never on how they were extracted.
package source

// Span is a zero-based source range.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Import is one import/include/source statement in parse order.
type Import struct {
	Value string `json:"value"`
	Span  Span   `json:"span"`

	// Bracketed reports angle-bracket include syntax (#include <x>).
	// Only meaningful for C-family languages.
	Bracketed bool `json:"bracketed,omitempty"`
}

// SymbolKind classifies a declared symbol.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
)

// Symbol is a declared function, class or method.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`
	Span Span       `json:"span"`
}

// FileMetadata is the structured view of one source file.
type FileMetadata struct {
	// ModulePath is the project-relative, slash-separated file path.
	ModulePath string `json:"module_path"`

	// LanguageID is the lower-case language tag ("cpp", "python", ...).
	LanguageID string `json:"language_id"`

	Imports       []Import `json:"imports"`
	Symbols       []Symbol `json:"symbols,omitempty"`
	FunctionCalls []string `json:"function_calls"`

	// ActiveSymbol is the function/class under the cursor, if any.
	ActiveSymbol *Symbol `json:"active_symbol,omitempty"`
}

// ImportValues returns the import values in parse order.
func (m FileMetadata) ImportValues() []string {
	values := make([]string, len(m.Imports))
	for i, imp := range m.Imports {
		values[i] = imp.Value
	}
	return values
}

// ActiveName returns the active symbol name and whether one is set.
func (m FileMetadata) ActiveName() (string, bool) {
	if m.ActiveSymbol == nil || m.ActiveSymbol.Name == "" {
		return "", false
	}
	return m.ActiveSymbol.Name, true
}

// IsCFamily reports whether the language uses #include semantics.
func IsCFamily(languageID string) bool {
	switch languageID {
	case "c", "cpp", "objective-c", "objective-cpp":
		return true
	default:
		return false
	}
}

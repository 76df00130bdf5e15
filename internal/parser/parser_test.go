package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lace/internal/source"
)

func importValues(md source.FileMetadata) []string {
	return md.ImportValues()
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"a.c":       LanguageCPP,
		"a.HPP":     LanguageCPP,
		"x/y/z.cc":  LanguageCPP,
		"tool.py":   LanguagePython,
		"run.sh":    LanguageShell,
		"run.bash":  LanguageShell,
		"main.go":   LanguageGo,
		"README.md": LanguageUnknown,
		"Makefile":  LanguageUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestParse_CPP(t *testing.T) {
	src := "#include <vector>\n  # include \"legacy/io.h\"\nint main() {\n  if (x) { printf(\"hi\"); }\n  run (1); printf(\"again\");\n}\n"

	md := Parse([]byte(src), "src/a.cpp", LanguageCPP)

	assert.Equal(t, []string{"vector", "legacy/io.h"}, importValues(md))
	assert.True(t, md.Imports[0].Bracketed)
	assert.False(t, md.Imports[1].Bracketed)
	assert.Equal(t, source.Span{StartLine: 1, StartColumn: 13, EndLine: 1, EndColumn: 24}, md.Imports[1].Span)
	assert.Equal(t, []string{"main", "printf", "run"}, md.FunctionCalls)
}

func TestParse_Python(t *testing.T) {
	src := "from os.path import join\nimport json\n  import sys\n\ndef handler(event):\n    return json.dumps(event)\n"

	md := Parse([]byte(src), "app/handler.py", LanguagePython)

	assert.Equal(t, []string{"os.path", "json", "sys"}, importValues(md))
	assert.Equal(t, []string{"handler", "dumps"}, md.FunctionCalls)
}

func TestParse_Shell(t *testing.T) {
	src := "#!/bin/bash\nsource ./lib/common.sh\n. /etc/profile\necho hi\n"

	md := Parse([]byte(src), "run.sh", LanguageShell)

	assert.Equal(t, []string{"./lib/common.sh", "/etc/profile"}, importValues(md))
}

func TestParse_UnknownHasNoImports(t *testing.T) {
	md := Parse([]byte("#include <x>\ncall()\n"), "notes.txt", LanguageUnknown)

	assert.NotNil(t, md.Imports)
	assert.Empty(t, md.Imports)
	assert.Equal(t, []string{"call"}, md.FunctionCalls)
}

func TestParse_Go(t *testing.T) {
	src := `package demo

import (
	"fmt"
	"github.com/example/legacy/io"
)

type Server struct{}

func (s *Server) Serve() {
	fmt.Println("serving")
	io.Open()
}

func main() {
	s := &Server{}
	s.Serve()
}
`
	md := Parse([]byte(src), "cmd/demo/main.go", LanguageGo)

	assert.Equal(t, []string{"fmt", "github.com/example/legacy/io"}, importValues(md))
	assert.Equal(t, []string{"Println", "Open", "Serve"}, md.FunctionCalls)

	require.Len(t, md.Symbols, 3)
	assert.Equal(t, source.Symbol{Name: "Server", Kind: source.SymbolClass, Span: md.Symbols[0].Span}, md.Symbols[0])
	assert.Equal(t, source.SymbolMethod, md.Symbols[1].Kind)
	assert.Equal(t, "main", md.Symbols[2].Name)
	assert.Equal(t, source.SymbolFunction, md.Symbols[2].Kind)

	active := SymbolAt(md.Symbols, 11)
	require.NotNil(t, active)
	assert.Equal(t, "Serve", active.Name)
	assert.Nil(t, SymbolAt(md.Symbols, 0))
}

func TestParse_GoSyntaxErrorFallsBackToScan(t *testing.T) {
	md := Parse([]byte("package x\nfunc broken( {\n  helper()\n"), "x.go", LanguageGo)

	assert.Empty(t, md.Imports)
	assert.Contains(t, md.FunctionCalls, "helper")
}

func TestSymbolNamed(t *testing.T) {
	symbols := []source.Symbol{{Name: "run", Kind: source.SymbolMethod}}

	assert.Equal(t, source.SymbolMethod, SymbolNamed(symbols, "run").Kind)
	synthetic := SymbolNamed(nil, "main")
	assert.Equal(t, "main", synthetic.Name)
	assert.Equal(t, source.SymbolFunction, synthetic.Kind)
}

func TestBuild_ModulePathRelativeToProject(t *testing.T) {
	project := t.TempDir()
	path := filepath.Join(project, "src", "a.cpp")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#include \"legacy/io.h\"\n"), 0o644))

	md, err := Build(path, project)
	require.NoError(t, err)

	assert.Equal(t, "src/a.cpp", md.ModulePath)
	assert.Equal(t, LanguageCPP, md.LanguageID)
	assert.Equal(t, []string{"legacy/io.h"}, importValues(md))
}

func TestModulePath_NFC(t *testing.T) {
	project := t.TempDir()
	decomposed := filepath.Join(project, "cafe\u0301.py")

	got, err := ModulePath(decomposed, project)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.py", got)
}

func TestBuild_MissingFile(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope.cpp"), t.TempDir())
	assert.Error(t, err)
}

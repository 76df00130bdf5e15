package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/contextblock"
	"github.com/roach88/lace/internal/parser"
)

// ContextOptions holds flags for the context command.
type ContextOptions struct {
	*RootOptions
	Function string
	Line     int
	Previous string
	Write    bool
	Mode     string
	Cursor   int
}

// ContextReport is the output of the context command.
type ContextReport struct {
	Path      string              `json:"path"`
	Function  string              `json:"function,omitempty"`
	Block     string              `json:"block"`
	Unchanged bool                `json:"unchanged"`
	Skipped   bool                `json:"skipped"`
	Written   bool                `json:"written"`
	Result    contextblock.Result `json:"result"`
}

// String renders the block, or a status line when --write was given and
// the file changed or had nothing to insert.
func (r ContextReport) String() string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("No governance context for %s", r.Path)
	case r.Written:
		return fmt.Sprintf("Context block written to %s", r.Path)
	default:
		return r.Block
	}
}

// NewContextCommand creates the context command.
func NewContextCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContextOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "context <file>",
		Short: "Compile the governance context block for a file",
		Long: `Evaluate one file and print the comment block that carries its invariants,
decisions, requirement and violations.

The active function is taken from --function, or from the innermost symbol
enclosing --line (1-based). With --previous, a block whose decisions and
violations match the previous one collapses to a short no-change note.
With --write, the block is inserted into the file itself, replacing any
block already there; a file with no governance context is left untouched.

Example:
  lace context src/a.cpp --line 42
  lace context src/a.cpp --function run --write --mode top`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Function, "function", "", "active function name")
	cmd.Flags().IntVar(&opts.Line, "line", 0, "cursor line (1-based) used to find the active symbol")
	cmd.Flags().StringVar(&opts.Previous, "previous", "", "file holding the previously generated block")
	cmd.Flags().BoolVar(&opts.Write, "write", false, "insert the block into the file")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(contextblock.InsertReplace), "insert position with --write (top|cursor|replace)")
	cmd.Flags().IntVar(&opts.Cursor, "cursor", 0, "byte offset used by --mode cursor")

	return cmd
}

func runContext(opts *ContextOptions, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	mode, err := contextblock.ParseInsertMode(opts.Mode)
	if err != nil {
		_ = formatter.Error(ErrCodeUsage, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid --mode", err)
	}

	p, dir, err := openProject(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeProject(p)

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "reading source file", err)
	}
	modulePath, err := parser.ModulePath(path, p.Location().ProjectDir())
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "resolving module path", err)
	}

	md := parser.Parse(content, modulePath, parser.DetectLanguage(path))
	switch {
	case opts.Function != "":
		md.ActiveSymbol = parser.SymbolNamed(md.Symbols, opts.Function)
	case opts.Line > 0:
		md.ActiveSymbol = parser.SymbolAt(md.Symbols, opts.Line-1)
	}

	ev, err := p.Evaluate(cmd.Context(), md)
	if err != nil {
		return evaluationError(formatter, md.ModulePath, err)
	}

	previous, err := previousBlock(opts, dir, string(content))
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "reading previous block", err)
	}

	block := contextblock.Optimize(previous, contextblock.DeltaFor(ev.ContextInput(), ev.Context))
	report := ContextReport{
		Path:      md.ModulePath,
		Block:     block,
		Unchanged: block != ev.Context.Text,
		Result:    ev.Context,
	}
	if name, ok := md.ActiveName(); ok {
		report.Function = name
	}

	if opts.Write {
		switch {
		case contextblock.ShouldSkip(ev.Context, ev.ContextInput()):
			report.Skipped = true
		case !report.Unchanged:
			document := contextblock.Insert(string(content), block, mode, opts.Cursor)
			if err := writeFilePreservingMode(path, []byte(document)); err != nil {
				_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
				return WrapExitError(ExitFailure, "writing context block", err)
			}
			report.Written = true
			formatter.VerboseLog("Inserted context block into %s (%s)", md.ModulePath, mode)
		}
	}

	if err := formatter.Success(report); err != nil {
		return WrapExitError(ExitFailure, "writing output", err)
	}
	return nil
}

// previousBlock returns the block to compare against: the --previous file,
// or with --write the block already present in the document.
func previousBlock(opts *ContextOptions, dir, document string) (string, error) {
	if opts.Previous != "" {
		path := opts.Previous
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if i := strings.Index(document, contextblock.Header); opts.Write && i >= 0 {
		return document[i:], nil
	}
	return "", nil
}

func writeFilePreservingMode(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, info.Mode().Perm())
}

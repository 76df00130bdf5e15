package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/governance"
	"github.com/roach88/lace/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryReport is the output of the history command.
type HistoryReport struct {
	Module  string          `json:"module,omitempty"`
	Entries []history.Entry `json:"entries"`
}

// String renders the entries as a table, oldest first.
func (r HistoryReport) String() string {
	if len(r.Entries) == 0 {
		return "No evaluations recorded."
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tMODULE\tSCORE\tTREND\tSTRICT\tADVISORY\tCONTEXT\tRUN")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\t%d\t%d\t%s\t%s\n",
			e.Seq, e.ModulePath, e.Score, signed(e.Trend),
			e.StrictViolations, e.AdvisoryViolations, shortHash(e.ContextHash), e.RunID)
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [module]",
		Short: "List recorded evaluations",
		Long: `List evaluations recorded in .lace/history.db, oldest first, optionally
for one module path. Evaluations are recorded when settings.yaml sets
history: true or a command runs with --history.

Example:
  lace history
  lace history src/a.cpp --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module := ""
			if len(args) == 1 {
				module = args[0]
			}
			return runHistory(opts, module, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "most recent entries to show (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, module string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Limit < 0 {
		_ = formatter.Error(ErrCodeUsage, "--limit must be >= 0", nil)
		return NewExitError(ExitFailure, "--limit must be >= 0")
	}

	// Reading history needs the database open whatever settings.yaml says.
	forced := *opts.RootOptions
	forced.History = true

	p, _, err := openProject(&forced, formatter)
	if err != nil {
		return err
	}
	defer closeProject(p)

	entries, err := p.History(cmd.Context(), module, opts.Limit)
	if errors.Is(err, governance.ErrHistoryDisabled) {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitConfig, "reading history", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "reading history", err)
	}

	if err := formatter.Success(HistoryReport{Module: module, Entries: entries}); err != nil {
		return WrapExitError(ExitFailure, "writing output", err)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

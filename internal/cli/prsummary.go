package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/state"
)

// PRSummaryOptions holds flags for the pr-summary command.
type PRSummaryOptions struct {
	*RootOptions
	ChangedFiles []string
}

// PRSummary is the governance impact of a change set.
type PRSummary struct {
	AffectedDecisions    []string `json:"affectedDecisions"`
	AffectedRequirements []string `json:"affectedRequirements"`
	NewStrictViolations  int      `json:"newStrictViolations"`
	EntropyDelta         float64  `json:"entropyDelta"` // mean trend over changed files
}

// String renders the summary as pasted into a pull request description.
func (s PRSummary) String() string {
	lines := []string{
		"PR SDLC Summary",
		"----------------",
		"Affected Decisions:",
	}
	lines = append(lines, bulletLines(s.AffectedDecisions)...)
	lines = append(lines, "Affected Requirements:")
	lines = append(lines, bulletLines(s.AffectedRequirements)...)
	lines = append(lines,
		fmt.Sprintf("New Strict Violations: %d", s.NewStrictViolations),
		"Entropy Delta: "+signed(s.EntropyDelta),
	)
	return strings.Join(lines, "\n")
}

func bulletLines(values []string) []string {
	if len(values) == 0 {
		return []string{"  None"}
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = "  " + v
	}
	return out
}

// NewPRSummaryCommand creates the pr-summary command.
func NewPRSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PRSummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pr-summary --changed-files <file>...",
		Short: "Summarize the governance impact of changed files",
		Long: `Evaluate the changed files of a pull request and summarize the decisions
and requirements they touch, their strict violations and the mean entropy
trend.

Example:
  lace pr-summary --changed-files src/a.cpp,src/b.cpp
  lace pr-summary --changed-files src/a.cpp src/b.cpp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPRSummary(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.ChangedFiles, "changed-files", nil, "changed files (comma separated, or followed by positional files)")

	return cmd
}

func runPRSummary(opts *PRSummaryOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files := append(append([]string(nil), opts.ChangedFiles...), args...)
	if !cmd.Flags().Changed("changed-files") || len(files) == 0 {
		_ = formatter.Error(ErrCodeUsage, "pr-summary requires --changed-files", nil)
		return NewExitError(ExitFailure, "pr-summary requires --changed-files")
	}

	p, dir, err := openProject(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeProject(p)

	evaluations, err := evaluateFiles(cmd.Context(), p, dir, files, formatter)
	if err != nil {
		return err
	}

	decisions := make(map[string]struct{})
	requirements := make(map[string]struct{})
	summary := PRSummary{}
	trend := 0.0
	for _, ev := range evaluations {
		im := ev.Impact()
		for _, id := range im.Decisions {
			decisions[id] = struct{}{}
		}
		for _, id := range im.Requirements {
			requirements[id] = struct{}{}
		}
		summary.NewStrictViolations += ev.StrictViolations()
		trend += ev.Entropy.Trend
	}
	summary.AffectedDecisions = sortedKeys(decisions)
	summary.AffectedRequirements = sortedKeys(requirements)
	if len(evaluations) > 0 {
		summary.EntropyDelta = state.Round4(trend / float64(len(evaluations)))
	}

	if err := formatter.Success(summary); err != nil {
		return WrapExitError(ExitFailure, "writing output", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

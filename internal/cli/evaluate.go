package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/governance"
	"github.com/roach88/lace/internal/policy"
	"github.com/roach88/lace/internal/state"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	StrictOnly bool
	JSON       bool
}

// FileResult is the per-file line of an evaluation report.
type FileResult struct {
	Path               string   `json:"path"`
	StrictViolations   int      `json:"strictViolations"`
	AdvisoryViolations int      `json:"advisoryViolations"`
	Decisions          []string `json:"decisions"`
	Requirements       []string `json:"requirements"`
	EntropyScore       float64  `json:"entropyScore"`
	EntropyTrend       float64  `json:"entropyTrend"`

	contextInflation int
	decisionDrift    bool
}

// Summary aggregates an evaluation report.
type Summary struct {
	StrictTotal   int     `json:"strictTotal"`
	AdvisoryTotal int     `json:"advisoryTotal"`
	EntropyScore  float64 `json:"entropyScore"` // mean over files
}

// EvaluateReport is the output of the evaluate command.
type EvaluateReport struct {
	Files    []FileResult `json:"files"`
	Summary  Summary      `json:"summary"`
	CIFailed bool         `json:"ciFailed"`
}

// String renders the text report.
func (r EvaluateReport) String() string {
	lines := []string{
		"LACE CLI Evaluation",
		"--------------------",
		fmt.Sprintf("Files evaluated: %d", len(r.Files)),
		fmt.Sprintf("Strict violations: %d", r.Summary.StrictTotal),
		fmt.Sprintf("Advisory violations: %d", r.Summary.AdvisoryTotal),
		fmt.Sprintf("Entropy score: %.4f", r.Summary.EntropyScore),
	}
	if r.CIFailed {
		lines = append(lines, "CI thresholds: "+color.New(color.FgRed, color.Bold).Sprint("FAILED"))
	}
	return strings.Join(lines, "\n")
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <file>...",
		Short: "Evaluate files against the project's policies",
		Long: `Evaluate source files against the policies, decisions and requirements in
the nearest .lace directory and report violations and entropy.

Exit codes:
  0  no strict violations
  1  strict violations found
  2  CI thresholds from policies.yaml exceeded
  3  configuration missing or invalid

Example:
  lace evaluate src/a.cpp src/b.cpp
  lace evaluate --json src/a.cpp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.StrictOnly, "strict-only", false, "exit status reflects strict violations only, CI thresholds are not checked")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "shorthand for --format json")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, files []string, cmd *cobra.Command) error {
	if opts.JSON {
		opts.Format = "json"
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if len(files) == 0 {
		_ = formatter.Error(ErrCodeUsage, "No files specified", nil)
		return NewExitError(ExitFailure, "No files specified")
	}

	report, err := evaluateReport(opts.RootOptions, files, !opts.StrictOnly, cmd, formatter)
	if err != nil {
		return err
	}
	if err := formatter.Success(report); err != nil {
		return WrapExitError(ExitFailure, "writing output", err)
	}
	return reportExit(report)
}

// evaluateReport evaluates files and builds the report. checkCI selects
// whether the policy file's ci thresholds are applied.
func evaluateReport(opts *RootOptions, files []string, checkCI bool, cmd *cobra.Command, formatter *OutputFormatter) (EvaluateReport, error) {
	p, dir, err := openProject(opts, formatter)
	if err != nil {
		return EvaluateReport{}, err
	}
	defer closeProject(p)

	evaluations, err := evaluateFiles(cmd.Context(), p, dir, files, formatter)
	if err != nil {
		return EvaluateReport{}, err
	}

	report := buildReport(evaluations)
	if checkCI {
		ci, err := p.CIConfig()
		if err != nil {
			_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
			return EvaluateReport{}, WrapExitError(ExitConfig, "loading ci thresholds", err)
		}
		report.CIFailed = ciFailed(ci, report)
	}
	return report, nil
}

func reportExit(report EvaluateReport) error {
	if report.CIFailed {
		return NewExitError(ExitThresholds, "CI thresholds exceeded")
	}
	if report.Summary.StrictTotal > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d strict violation(s)", report.Summary.StrictTotal))
	}
	return nil
}

func fileResult(ev *governance.Evaluation) FileResult {
	decisions := make([]string, 0, len(ev.Decisions))
	for _, d := range ev.Decisions {
		decisions = append(decisions, d.ID)
	}
	sort.Strings(decisions)

	requirements := []string{}
	if ev.Requirement != nil {
		requirements = append(requirements, ev.Requirement.ID)
	}

	drift := false
	for _, m := range ev.Matches {
		if m.Policy.Origin != "" && m.HasViolations() {
			drift = true
			break
		}
	}

	return FileResult{
		Path:               ev.Metadata.ModulePath,
		StrictViolations:   ev.StrictViolations(),
		AdvisoryViolations: ev.AdvisoryViolations(),
		Decisions:          decisions,
		Requirements:       requirements,
		EntropyScore:       state.Round4(ev.Entropy.Score),
		EntropyTrend:       state.Round4(ev.Entropy.Trend),
		contextInflation:   ev.Entropy.Tokens,
		decisionDrift:      drift,
	}
}

func buildReport(evaluations []*governance.Evaluation) EvaluateReport {
	report := EvaluateReport{Files: make([]FileResult, 0, len(evaluations))}

	total := 0.0
	for _, ev := range evaluations {
		r := fileResult(ev)
		report.Files = append(report.Files, r)
		report.Summary.StrictTotal += r.StrictViolations
		report.Summary.AdvisoryTotal += r.AdvisoryViolations
		total += r.EntropyScore
	}
	if len(report.Files) > 0 {
		report.Summary.EntropyScore = state.Round4(total / float64(len(report.Files)))
	}
	return report
}

// ciFailed applies the ci block. Context inflation is compared with each
// file's context token estimate.
func ciFailed(ci *policy.CIConfig, report EvaluateReport) bool {
	if ci == nil {
		return false
	}
	if ci.MaxEntropyScore != nil && report.Summary.EntropyScore > *ci.MaxEntropyScore {
		return true
	}
	if ci.MaxContextInflation != nil {
		for _, f := range report.Files {
			if float64(f.contextInflation) > *ci.MaxContextInflation {
				return true
			}
		}
	}
	if ci.FailOnDecisionDrift {
		for _, f := range report.Files {
			if f.decisionDrift {
				return true
			}
		}
	}
	return false
}

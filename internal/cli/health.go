package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/drift"
	"github.com/roach88/lace/internal/entropy"
	"github.com/roach88/lace/internal/governance"
)

// HealthFile is the SDLC health of one evaluated file.
type HealthFile struct {
	Path        string                  `json:"path"`
	Entropy     entropy.Recorded        `json:"entropy"`
	Report      entropy.Report          `json:"report"`
	Drift       drift.Report            `json:"drift"`
	Impact      governance.Impact       `json:"impact"`
	Diagnostics []governance.Diagnostic `json:"diagnostics"`
}

// HealthReport is the output of the health command.
type HealthReport struct {
	Files    []HealthFile `json:"files"`
	Summary  Summary      `json:"summary"`
	CIFailed bool         `json:"ciFailed"`
}

// String renders the text report.
func (r HealthReport) String() string {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	var b strings.Builder
	b.WriteString(bold("--- LACE SDLC Health ---"))
	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n%s\n", cyan(f.Path))
		fmt.Fprintf(&b, "Entropy score: %.4f (trend %s)\n", f.Entropy.Score, signed(f.Entropy.Trend))
		fmt.Fprintf(&b, "Affected policies: %s\n", listOrNone(f.Impact.Policies))
		b.WriteString("[Entropy]\n")
		b.WriteString(indentJSON(f.Report))
		b.WriteString("\n[Drift]\n")
		b.WriteString(indentJSON(f.Drift))
	}
	if r.CIFailed {
		b.WriteString("\nCI thresholds: " + color.New(color.FgRed, color.Bold).Sprint("FAILED"))
	}
	return b.String()
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health <file>...",
		Short: "Show entropy and drift reports for files",
		Long: `Evaluate files like "lace evaluate" and add, per file, the history-derived
entropy report, the drift report, the change impact and positioned
diagnostics. Exit codes match "lace evaluate".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runHealth(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if len(files) == 0 {
		_ = formatter.Error(ErrCodeUsage, "No files specified", nil)
		return NewExitError(ExitFailure, "No files specified")
	}

	p, dir, err := openProject(opts, formatter)
	if err != nil {
		return err
	}
	defer closeProject(p)

	evaluations, err := evaluateFiles(cmd.Context(), p, dir, files, formatter)
	if err != nil {
		return err
	}

	summary := buildReport(evaluations)
	ci, err := p.CIConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitConfig, "loading ci thresholds", err)
	}
	summary.CIFailed = ciFailed(ci, summary)

	report := HealthReport{
		Files:    make([]HealthFile, 0, len(evaluations)),
		Summary:  summary.Summary,
		CIFailed: summary.CIFailed,
	}
	for _, ev := range evaluations {
		h := p.Health(ev)
		report.Files = append(report.Files, HealthFile{
			Path:        ev.Metadata.ModulePath,
			Entropy:     ev.Entropy,
			Report:      h.Entropy,
			Drift:       h.Drift,
			Impact:      ev.Impact(),
			Diagnostics: ev.Diagnostics(),
		})
	}

	if err := formatter.Success(report); err != nil {
		return WrapExitError(ExitFailure, "writing output", err)
	}
	return reportExit(summary)
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// signed formats v with four decimals and a leading "+" when v >= 0.
func signed(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.4f", v)
	}
	return fmt.Sprintf("%.4f", v)
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}

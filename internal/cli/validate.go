package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Root   string                   `json:"root"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateConfigCommand creates the validate-config command.
func NewValidateConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the .lace declaration files",
		Long: `Check policies.yaml, decisions.yaml, requirements.yaml and settings.yaml
against their schema and for duplicate ids, dangling references, and
globs or regexes that do not compile. Every problem is reported.

Exits 0 when the configuration is valid and 3 otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidateConfig(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loc, _, err := locate(opts, formatter)
	if err != nil {
		return err
	}

	errs, err := config.Validate(loc.RootDir)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "validating configuration", err)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, loc.RootDir, errs)
	}
	return outputValidateSuccess(formatter, loc.RootDir)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, root string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Root: root})
	}

	fmt.Fprintln(formatter.Writer, color.New(color.FgGreen).Sprint("Configuration valid."))
	return nil
}

// outputValidationErrors outputs every validation error and fails with
// the configuration exit code.
func outputValidationErrors(formatter *OutputFormatter, root string, errs []config.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Root: root, Errors: errs},
			Error: &CLIError{
				Code:    ErrCodeInvalidConfig,
				Message: fmt.Sprintf("%d configuration error(s)", len(errs)),
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		return NewExitError(ExitConfig, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, color.New(color.FgRed).Sprint("Configuration invalid:"))
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}

	return NewExitError(ExitConfig, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

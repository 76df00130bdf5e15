package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/lace/internal/config"
	"github.com/roach88/lace/internal/governance"
	"github.com/roach88/lace/internal/parser"
	"github.com/roach88/lace/internal/policy"
)

// startDir returns the directory commands resolve paths against.
func startDir(opts *RootOptions) (string, error) {
	if opts.Dir != "" {
		return filepath.Abs(opts.Dir)
	}
	return os.Getwd()
}

// locate finds the .lace directory above the start directory.
func locate(opts *RootOptions, formatter *OutputFormatter) (config.Location, string, error) {
	dir, err := startDir(opts)
	if err != nil {
		return config.Location{}, "", WrapExitError(ExitFailure, "resolving start directory", err)
	}
	loc, err := config.Locate(dir)
	if errors.Is(err, config.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, "Unable to locate .lace directory", map[string]string{"start": dir})
		return config.Location{}, "", WrapExitError(ExitConfig, "Unable to locate .lace directory", err)
	}
	if err != nil {
		return config.Location{}, "", WrapExitError(ExitFailure, "locating .lace directory", err)
	}
	slog.Debug("located project", "root", loc.RootDir)
	return loc, dir, nil
}

// openProject locates and opens the project for a command.
func openProject(opts *RootOptions, formatter *OutputFormatter) (*governance.Project, string, error) {
	loc, dir, err := locate(opts, formatter)
	if err != nil {
		return nil, "", err
	}

	settings, err := config.LoadSettings(loc.RootDir)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return nil, "", WrapExitError(ExitConfig, "loading settings", err)
	}
	if opts.History {
		settings.History = true
	}

	p, err := governance.Open(loc, governance.WithSettings(settings), governance.WithLogger(slog.Default()))
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, "", WrapExitError(ExitFailure, "opening project", err)
	}
	return p, dir, nil
}

// closeProject flushes pending state. A failure is logged; the command's
// own result stands.
func closeProject(p *governance.Project) {
	if err := p.Close(); err != nil {
		slog.Warn("closing project", "error", err)
	}
}

// evaluateFiles evaluates files, resolved against dir, one at a time in
// argument order and returns the evaluations sorted by module path.
func evaluateFiles(ctx context.Context, p *governance.Project, dir string, files []string, formatter *OutputFormatter) ([]*governance.Evaluation, error) {
	evaluations := make([]*governance.Evaluation, 0, len(files))
	for _, file := range files {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		md, err := parser.Build(path, p.Location().ProjectDir())
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return nil, WrapExitError(ExitFailure, "reading source file", err)
		}
		formatter.VerboseLog("Evaluating %s (%s)", md.ModulePath, md.LanguageID)

		ev, err := p.Evaluate(ctx, md)
		if err != nil {
			return nil, evaluationError(formatter, md.ModulePath, err)
		}
		evaluations = append(evaluations, ev)
	}

	sort.SliceStable(evaluations, func(i, j int) bool {
		return evaluations[i].Metadata.ModulePath < evaluations[j].Metadata.ModulePath
	})
	return evaluations, nil
}

// evaluationError reports a failed evaluation. An unusable policy file is
// a configuration error.
func evaluationError(formatter *OutputFormatter, modulePath string, err error) error {
	if errors.Is(err, policy.ErrInvalidPolicyFile) {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitConfig, "loading policies", err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitFailure, fmt.Sprintf("evaluating %s", modulePath), err)
}

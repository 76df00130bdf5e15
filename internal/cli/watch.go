package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lace/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Delay time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [file]...",
		Short: "Watch the .lace directory and reload declarations on change",
		Long: `Watch policies.yaml, decisions.yaml and requirements.yaml and drop the
cached copy of each file after it changes. Every reload is logged. When
files are given they are evaluated once at start and again after every
reload. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Delay, "delay", watch.DefaultDelay, "debounce delay for file events")

	return cmd
}

func runWatch(opts *WatchOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	p, dir, err := openProject(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeProject(p)

	// Reloads run on the watcher's timer goroutine. The project is closed
	// only after an in-flight re-evaluation finishes.
	var mu sync.Mutex
	defer func() {
		mu.Lock()
		mu.Unlock()
	}()
	reevaluate := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		evaluations, err := evaluateFiles(ctx, p, dir, files, formatter)
		if err != nil {
			slog.Warn("re-evaluation failed", "error", err)
			return
		}
		if err := formatter.Success(buildReport(evaluations)); err != nil {
			slog.Warn("writing output", "error", err)
		}
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	watchOpts := []watch.Option{
		watch.WithDelay(opts.Delay),
		watch.WithLogger(slog.Default()),
	}
	if len(files) > 0 {
		reevaluate(ctx)
		watchOpts = append(watchOpts, watch.WithOnReload(func([]string) {
			reevaluate(ctx)
		}))
	}

	w, err := watch.New(p.Location().RootDir, p, watchOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "starting watcher", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("watching declarations", "root", p.Location().RootDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl-C to stop.\n", p.Location().RootDir)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "watch error", err)
	}

	slog.Info("watch stopped")
	return nil
}

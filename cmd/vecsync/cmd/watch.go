package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/reindex"
	"github.com/lexhaven/vecsync/internal/ui"
	"github.com/lexhaven/vecsync/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reindex continuously as the corpus changes",
		Long: `Watch the corpus directory and run a reindex pass after each settled
burst of filesystem changes. The settle window (reindex.watch_debounce)
coalesces editor save storms into one pass.

An initial pass runs at startup, so anything that changed while the
watcher was down is picked up immediately. Watch mode requires a
filesystem corpus. Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cmd)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Corpus.Source != "fs" {
		return fmt.Errorf("watch mode requires a filesystem corpus, got source %q", cfg.Corpus.Source)
	}

	deps, err := buildPassDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// A long-running watch interleaves many passes; full-screen TUI frames
	// would fight each other, so watch mode always uses plain output.
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(true),
		ui.WithNoColor(noColor || ui.DetectNoColor()),
		ui.WithIndexName(cfg.Index.Name)))

	r, err := newReindexer(deps, cfg, renderer)
	if err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		Settle:  cfg.WatchDebounceDuration(),
		Exclude: cfg.Corpus.Exclude,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, cfg.Corpus.Root) }()

	// The initial pass covers whatever changed while no watcher was
	// running. Events that arrive during it are debounced and handled
	// by the loop below.
	runWatchPass(ctx, r)

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (settle %s), Ctrl-C to stop\n",
		cfg.Corpus.Root, cfg.WatchDebounceDuration())

	for {
		select {
		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watcher stopped: %w", err)
			}
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Info("watch_triggered", slog.Int("changes", len(batch)))
			runWatchPass(ctx, r)
		case werr, ok := <-w.Errors():
			if ok && werr != nil {
				slog.Warn("watch_error", slog.String("error", werr.Error()))
			}
		}
	}
}

// runWatchPass runs one pass and logs failures instead of returning
// them: watch mode outlives individual pass errors, and the next
// settled batch gets another chance.
func runWatchPass(ctx context.Context, r *reindex.Reindexer) {
	summary, err := r.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("watch_pass_failed", slog.String("error", err.Error()))
		return
	}
	if summary.Failed > 0 {
		slog.Warn("watch_pass_partial",
			slog.Int("failed", summary.Failed),
			slog.Int("total", summary.Total()))
	}
}

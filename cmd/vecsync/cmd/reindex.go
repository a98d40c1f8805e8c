package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/reindex"
)

func newReindexCmd() *cobra.Command {
	var (
		dryRun bool
		full   bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Run one selective reindex pass",
		Long: `Scan the corpus, diff it against the registry, and reprocess only the
documents that were added, changed, or removed since the last pass.

Removals run first. Each changed document is chunked, embedded, and
upserted before its stale vectors are deleted, so an interrupted pass
leaves extra vectors behind, never missing ones; the next pass
converges the index.

Interrupting with Ctrl-C stops cleanly: documents already dispatched
finish and commit, and the registry stays consistent.`,
		Example: `  # Incremental pass
  vecsync reindex

  # Show what a pass would do without touching anything
  vecsync reindex --dry-run

  # Clear the registry and rebuild the index from scratch
  vecsync reindex --full`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if dryRun && full {
				return fmt.Errorf("--dry-run and --full are mutually exclusive")
			}
			return runReindex(ctx, cmd, dryRun, full)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the pass plan without writing anything")
	cmd.Flags().BoolVar(&full, "full", false, "Clear the registry first, forcing a complete rebuild")

	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, dryRun, full bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := buildPassDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	r, err := newReindexer(deps, cfg, buildRenderer(cmd, cfg))
	if err != nil {
		return err
	}

	if dryRun {
		return runPlan(ctx, cmd, r)
	}

	var summary *reindex.PassSummary
	if full {
		summary, err = r.Full(ctx)
	} else {
		summary, err = r.Run(ctx)
	}
	if err != nil {
		if summary != nil && summary.Interrupted {
			return fmt.Errorf("pass interrupted: %w", err)
		}
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed, see the log for details",
			summary.Failed, summary.Total())
	}
	return nil
}

// runPlan prints the diff a pass would act on. Nothing is embedded,
// upserted, or committed.
func runPlan(ctx context.Context, cmd *cobra.Command, r *reindex.Reindexer) error {
	diff, err := r.Plan(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Plan: %d added, %d changed, %d removed, %d unchanged\n",
		len(diff.Added), len(diff.Changed), len(diff.Removed), len(diff.Unchanged))
	printPlanSection(out, "add", diff.Added)
	printPlanSection(out, "update", diff.Changed)
	printPlanSection(out, "remove", diff.Removed)
	return nil
}

// printPlanSection lists the documents in one diff category, capped so a
// large corpus does not flood the terminal.
func printPlanSection(out io.Writer, verb string, ids []string) {
	const maxListed = 20
	for i, id := range ids {
		if i == maxListed {
			fmt.Fprintf(out, "  ... and %d more to %s\n", len(ids)-maxListed, verb)
			return
		}
		fmt.Fprintf(out, "  %s %s\n", verb, id)
	}
}

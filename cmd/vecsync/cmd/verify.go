package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
	"github.com/lexhaven/vecsync/internal/reindex"
)

func newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Audit the index against the registry",
		Long: `Check that every chunk id the registry records still exists in the
index, and estimate orphaned vectors that no record claims.

With --repair, drifted documents get their fingerprints invalidated so
the next pass re-embeds exactly those documents. Chunk ids are content
derived, so re-embedding unchanged content restores the missing vectors
without disturbing valid ones. Verify never writes to the index itself.`,
		Example: `  # Audit only; exits non-zero when drift is found
  vecsync verify

  # Audit and schedule fixes for the next pass
  vecsync verify --repair && vecsync reindex`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runVerify(ctx, cmd, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Invalidate drifted documents so the next pass re-embeds them")

	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, repair bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := registry.NewFromConfig(ctx, cfg.Registry)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	idx, err := index.NewFromConfig(cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to create index client: %w", err)
	}
	defer func() { _ = idx.Close() }()

	verifier := reindex.NewVerifier(reg, idx)
	report, err := verifier.Verify(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Audited %d documents (%d chunks) in %s\n",
		report.Documents, report.Chunks, report.Duration.Round(time.Millisecond))

	if report.Clean() {
		fmt.Fprintln(out, "Registry and index agree.")
		return nil
	}

	for _, drift := range report.Drifted {
		fmt.Fprintf(out, "  drift %s: %d missing chunks\n", drift.DocumentID, len(drift.Missing))
	}
	if report.OrphanEstimate > 0 {
		fmt.Fprintf(out, "  ~%d orphaned vectors claimed by no record\n", report.OrphanEstimate)
	}

	if !repair {
		return fmt.Errorf("%d documents drifted (%d chunks missing), run 'vecsync verify --repair' to schedule fixes",
			len(report.Drifted), report.MissingChunks())
	}

	invalidated, err := verifier.Repair(ctx, report)
	if err != nil {
		return fmt.Errorf("repair stopped after invalidating %d documents: %w", invalidated, err)
	}
	if invalidated > 0 {
		fmt.Fprintf(out, "Invalidated %d documents, run 'vecsync reindex' to rebuild them.\n", invalidated)
	}
	return nil
}

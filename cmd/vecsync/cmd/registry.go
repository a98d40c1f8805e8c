package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/registry"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and back up the document registry",
	}

	cmd.AddCommand(newRegistryExportCmd())

	return cmd
}

func newRegistryExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all registry records as zstd-compressed JSON",
		Long: `Write a snapshot of every registry record (document id, fingerprint,
chunk ids, indexed-at) as zstd-compressed JSON. The export is a backup
and inspection format; pass history is not included.

Without --out the compressed stream goes to stdout, so it can be piped:

  vecsync registry export | zstd -d | jq .count`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runRegistryExport(ctx, cmd, outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default: stdout)")

	return cmd
}

func runRegistryExport(ctx context.Context, cmd *cobra.Command, outPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := registry.NewFromConfig(ctx, cfg.Registry)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := registry.Export(ctx, reg, out); err != nil {
		return err
	}

	if outPath != "" {
		count, err := reg.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", count, outPath)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/config"
	"github.com/lexhaven/vecsync/internal/embed"
	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
	"github.com/lexhaven/vecsync/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index, registry, and embedder health",
		Long: `Display the current sync state:
  - Index vector count and dimensions
  - Registry backend and tracked document count
  - Most recent pass results
  - Embedder availability`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus gathers what it can. An unreachable index or embedder
// degrades the report instead of failing it; only a broken registry is
// fatal, because without it there is no sync state to show.
func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		IndexName:       cfg.Index.Name,
		Provider:        cfg.Index.Provider,
		Namespace:       cfg.Index.Namespace,
		RegistryBackend: cfg.Registry.Backend,
		EmbedderBackend: cfg.Embedding.Provider,
		EmbedderModel:   cfg.Embedding.Model,
	}

	reg, err := registry.NewFromConfig(ctx, cfg.Registry)
	if err != nil {
		return info, fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	count, err := reg.Count(ctx)
	if err != nil {
		return info, err
	}
	info.Documents = count
	if cfg.Registry.Backend == "sqlite" {
		info.RegistrySize = getFileSize(cfg.Registry.Path)
	}

	if history, ok := reg.(registry.PassHistory); ok {
		if passes, err := history.RecentPasses(ctx, 1); err == nil && len(passes) > 0 {
			p := passes[0]
			info.LastPass = &ui.PassInfo{
				FinishedAt: p.FinishedAt,
				Added:      p.Added,
				Changed:    p.Changed,
				Removed:    p.Removed,
				Unchanged:  p.Unchanged,
				Failed:     p.Failed,
			}
		}
	}

	if idx, err := index.NewFromConfig(cfg.Index); err == nil {
		if stats, serr := idx.Stats(ctx); serr == nil {
			info.VectorCount = stats.VectorCount
			info.Dimensions = stats.Dimensions
		} else {
			slog.Warn("failed to read index stats", slog.String("error", serr.Error()))
		}
		_ = idx.Close()
	} else {
		slog.Warn("failed to create index client", slog.String("error", err.Error()))
	}
	if cfg.Index.Provider == "local" {
		info.IndexSize = getDirSize(cfg.Index.Path)
	}

	info.EmbedderStatus = "ready"
	if emb, err := embed.NewFromConfig(ctx, cfg.Embedding); err == nil {
		if !emb.Available(ctx) {
			info.EmbedderStatus = "offline"
		}
		info.EmbedderModel = emb.ModelName()
		_ = emb.Close()
	} else {
		info.EmbedderStatus = "error"
	}

	return info, nil
}

// getFileSize returns the size of a file in bytes, 0 if it is missing.
func getFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// getDirSize returns the total size of all files under a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})

	return size
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/chunk"
	"github.com/lexhaven/vecsync/internal/config"
	"github.com/lexhaven/vecsync/internal/corpus"
	"github.com/lexhaven/vecsync/internal/embed"
	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
	"github.com/lexhaven/vecsync/internal/reindex"
	"github.com/lexhaven/vecsync/internal/ui"
)

// loadConfig resolves the effective configuration: defaults, then
// vecsync.yaml in the current directory (or the --config file), then
// VECSYNC_* environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".", cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// passDeps bundles the collaborators a pass needs. Close releases them
// in reverse construction order and is safe on a partially built value.
type passDeps struct {
	source   corpus.Source
	chunker  *chunk.Chunker
	embedder embed.Embedder
	index    index.Client
	registry registry.Registry
	history  registry.PassHistory
	lockDir  string
}

func (d *passDeps) Close() {
	if d.index != nil {
		_ = d.index.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
	if d.registry != nil {
		_ = d.registry.Close()
	}
}

// buildPassDeps constructs the corpus source, chunker, registry,
// embedder, and index client from config. The caller owns Close.
func buildPassDeps(ctx context.Context, cfg *config.Config) (*passDeps, error) {
	source, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := &passDeps{
		source:  source,
		chunker: buildChunker(cfg),
		lockDir: lockDir(cfg),
	}

	reg, err := registry.NewFromConfig(ctx, cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	deps.registry = reg
	deps.history, _ = reg.(registry.PassHistory)

	embedder, err := embed.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	deps.embedder = embedder

	idx, err := index.NewFromConfig(cfg.Index)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create index client: %w", err)
	}
	deps.index = idx

	return deps, nil
}

// buildSource creates the corpus source selected by config.
func buildSource(ctx context.Context, cfg *config.Config) (corpus.Source, error) {
	maxSize := int64(cfg.Corpus.MaxFileSizeMB) << 20

	switch cfg.Corpus.Source {
	case "s3":
		source, err := corpus.NewS3Source(ctx, corpus.S3Options{
			Bucket:      cfg.Corpus.S3.Bucket,
			Prefix:      cfg.Corpus.S3.Prefix,
			Region:      cfg.Corpus.S3.Region,
			Include:     cfg.Corpus.Include,
			Exclude:     cfg.Corpus.Exclude,
			MaxFileSize: maxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 source: %w", err)
		}
		return source, nil
	default:
		source, err := corpus.NewFSSource(cfg.Corpus.Root, corpus.FSOptions{
			Include:     cfg.Corpus.Include,
			Exclude:     cfg.Corpus.Exclude,
			MaxFileSize: maxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create corpus source: %w", err)
		}
		return source, nil
	}
}

func buildChunker(cfg *config.Config) *chunk.Chunker {
	return chunk.NewChunkerWithOptions(chunk.Options{
		MaxChars: cfg.Chunking.MaxChars,
		Overlap:  cfg.Chunking.Overlap,
		Boundary: chunk.Boundary(cfg.Chunking.Boundary),
	})
}

// buildRenderer selects the progress renderer for a pass: the TUI on
// interactive terminals, plain lines for pipes, CI, or --plain.
func buildRenderer(cmd *cobra.Command, cfg *config.Config) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plainOutput),
		ui.WithNoColor(noColor || ui.DetectNoColor()),
		ui.WithIndexName(cfg.Index.Name)))
}

// newReindexer wires a Reindexer from the built dependencies.
func newReindexer(deps *passDeps, cfg *config.Config, renderer ui.Renderer) (*reindex.Reindexer, error) {
	return reindex.New(reindex.Dependencies{
		Source:   deps.source,
		Chunker:  deps.chunker,
		Embedder: deps.embedder,
		Index:    deps.index,
		Registry: deps.registry,
		History:  deps.history,
		Renderer: renderer,
	}, reindex.Options{
		Workers:        cfg.Reindex.Workers,
		MaxRetries:     cfg.Reindex.MaxRetries,
		RetryDelay:     cfg.RetryDelayDuration(),
		EmbedBatchSize: cfg.Embedding.BatchSize,
		LockDir:        deps.lockDir,
	})
}

// lockDir returns where the pass lock lives: next to the sqlite registry
// when there is one, the local .vecsync directory otherwise. The lock is
// per machine either way, which is what an advisory flock can promise.
func lockDir(cfg *config.Config) string {
	if cfg.Registry.Backend == "sqlite" && cfg.Registry.Path != "" {
		return filepath.Dir(cfg.Registry.Path)
	}
	return ".vecsync"
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

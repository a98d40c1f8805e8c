package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/embed"
	"github.com/lexhaven/vecsync/internal/index"
)

func newQueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Run a one-off similarity query against the index",
		Long: `Embed the given text and print the nearest chunks from the index with
their scores and source documents. Useful for eyeballing what the index
actually retrieves before writing a query set for 'vecsync eval'.`,
		Example: `  vecsync query "termination notice period"
  vecsync query "data retention" --top-k 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runQuery(ctx, cmd, args[0], topK)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (default: eval.top_k from config)")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, topK int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if topK <= 0 {
		topK = cfg.Eval.TopK
	}

	embedder, err := embed.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	idx, err := index.NewFromConfig(cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to create index client: %w", err)
	}
	defer func() { _ = idx.Close() }()

	vector, err := embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := idx.Query(ctx, vector, topK, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}

	for i, m := range matches {
		doc := metaString(m.Metadata, index.MetaDocumentID)
		fmt.Fprintf(out, "#%-3d %.4f  %s  (%s)\n", i+1, m.Score, m.ChunkID, doc)
		if text := metaString(m.Metadata, index.MetaText); text != "" {
			fmt.Fprintf(out, "     %s\n", snippet(text, 120))
		}
	}
	return nil
}

// metaString returns a metadata value as a string, empty when absent or
// not a string.
func metaString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	s, _ := md[key].(string)
	return s
}

// snippet collapses text to a single line of at most max runes.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

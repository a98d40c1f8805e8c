package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexhaven/vecsync/internal/config"
	"github.com/lexhaven/vecsync/internal/embed"
	"github.com/lexhaven/vecsync/internal/eval"
	"github.com/lexhaven/vecsync/internal/index"
)

func newEvalCmd() *cobra.Command {
	var (
		queriesPath string
		baseline    bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure retrieval quality against a query set",
		Long: `Run a query set against the index and report recall and MRR.

Each query in the set lists the chunk ids or document ids a good
retrieval should surface. Recall@k is the fraction of those targets
found in the top k results; MRR is the mean reciprocal rank of the
first relevant hit.

With --baseline the same query set runs against an in-memory BM25
lexical index built fresh from the corpus, giving the embedding
pipeline a floor to beat.`,
		Example: `  # Score the live index
  vecsync eval --queries queries.yaml

  # Score the lexical baseline over the same queries
  vecsync eval --queries queries.yaml --baseline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runEval(ctx, cmd, queriesPath, baseline)
		},
	}

	cmd.Flags().StringVar(&queriesPath, "queries", "", "Query set YAML file (default: eval.queries_path from config)")
	cmd.Flags().BoolVar(&baseline, "baseline", false, "Score a BM25 lexical baseline instead of the embedding index")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, queriesPath string, baseline bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if queriesPath == "" {
		queriesPath = cfg.Eval.QueriesPath
	}
	if queriesPath == "" {
		return fmt.Errorf("no query set: pass --queries or set eval.queries_path in the config")
	}

	set, err := eval.LoadQuerySet(queriesPath)
	if err != nil {
		return err
	}

	var report *eval.Report
	if baseline {
		report, err = runBaselineEval(ctx, cmd, cfg, set)
	} else {
		report, err = runIndexEval(ctx, cfg, set)
	}
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)

	if report.Failed == report.Queries {
		return fmt.Errorf("all %d queries failed", report.Failed)
	}
	return nil
}

func runIndexEval(ctx context.Context, cfg *config.Config, set *eval.QuerySet) (*eval.Report, error) {
	embedder, err := embed.NewFromConfig(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	idx, err := index.NewFromConfig(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to create index client: %w", err)
	}
	defer func() { _ = idx.Close() }()

	tester, err := eval.NewTester(embedder, idx, cfg.Eval.TopK)
	if err != nil {
		return nil, err
	}
	return tester.Run(ctx, set)
}

func runBaselineEval(ctx context.Context, cmd *cobra.Command, cfg *config.Config, set *eval.QuerySet) (*eval.Report, error) {
	source, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b, err := eval.NewBaseline(buildChunker(cfg))
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	chunks, err := b.IndexCorpus(ctx, source)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks into the BM25 baseline\n", chunks)

	return b.Run(ctx, set, cfg.Eval.TopK)
}

// printReport writes per-query scores and the set means.
func printReport(out io.Writer, report *eval.Report) {
	fmt.Fprintf(out, "Query set %q: %d queries, top %d, %s ranker\n\n",
		report.Set, report.Queries, report.TopK, report.Ranker)

	fmt.Fprintf(out, "  %-7s %-6s %-5s %s\n", "recall", "rr", "hit", "query")
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "  %-7s %-6s %-5s %s (%v)\n", "-", "-", "-", res.Text, res.Err)
			continue
		}
		hit := "-"
		if res.FirstHit > 0 {
			hit = fmt.Sprintf("#%d", res.FirstHit)
		}
		fmt.Fprintf(out, "  %-7.2f %-6.2f %-5s %s\n", res.Recall, res.ReciprocalRank, hit, res.Text)
	}

	fmt.Fprintf(out, "\nrecall@%d %.3f   MRR %.3f", report.TopK, report.Recall, report.MRR)
	if report.Failed > 0 {
		fmt.Fprintf(out, "   (%d of %d queries failed)", report.Failed, report.Queries)
	}
	fmt.Fprintf(out, "   [%s]\n", report.Duration.Round(time.Millisecond))
}

package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lexhaven/vecsync/internal/embed"
	"github.com/lexhaven/vecsync/internal/index"
)

// Tester scores a query set against the live vector index. It embeds
// and queries only; nothing it does writes to the index or the registry.
type Tester struct {
	embedder embed.Embedder
	index    index.Client
	topK     int
}

// NewTester builds a tester. topK <= 0 selects DefaultTopK.
func NewTester(embedder embed.Embedder, client index.Client, topK int) (*Tester, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if client == nil {
		return nil, fmt.Errorf("index client is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Tester{embedder: embedder, index: client, topK: topK}, nil
}

// Run scores every query in the set and returns the aggregate report.
// A query that fails to embed or retrieve is recorded as failed and the
// run continues; only context cancellation stops it.
func (t *Tester) Run(ctx context.Context, set *QuerySet) (*Report, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	slog.Info("eval_started",
		slog.String("set", set.Name),
		slog.String("ranker", "embedding"),
		slog.Int("queries", len(set.Queries)),
		slog.Int("top_k", t.topK))

	results := make([]QueryResult, 0, len(set.Queries))
	for _, q := range set.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, t.runQuery(ctx, q))
	}

	report := buildReport(set.Name, "embedding", t.topK, results, time.Since(started))
	slog.Info("eval_complete",
		slog.String("set", report.Set),
		slog.String("ranker", report.Ranker),
		slog.Float64("recall", report.Recall),
		slog.Float64("mrr", report.MRR),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (t *Tester) runQuery(ctx context.Context, q Query) QueryResult {
	vector, err := t.embedder.Embed(ctx, q.Text)
	if err != nil {
		return QueryResult{Text: q.Text, Expected: q.Expected(), Err: fmt.Errorf("embed query: %w", err)}
	}

	matches, err := t.index.Query(ctx, vector, t.topK, nil)
	if err != nil {
		return QueryResult{Text: q.Text, Expected: q.Expected(), Err: fmt.Errorf("query index: %w", err)}
	}

	hits := make([]rankedHit, len(matches))
	for i, m := range matches {
		hits[i] = rankedHit{
			chunkID: m.ChunkID,
			docID:   metadataString(m.Metadata, index.MetaDocumentID),
		}
	}
	return scoreQuery(q, hits)
}

// metadataString reads a metadata value as a string. Missing or
// non-string values come back empty.
func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	s, _ := md[key].(string)
	return s
}

// rankedHit is one retrieved result in rank order.
type rankedHit struct {
	chunkID string
	docID   string
}

// scoreQuery marks the expected targets off against the ranked hits. A
// hit is relevant when its chunk id is expected exactly or its document
// id is expected; each target counts once no matter how many hits
// satisfy it.
func scoreQuery(q Query, hits []rankedHit) QueryResult {
	wantChunk := make(map[string]bool, len(q.ExpectedChunks))
	for _, id := range q.ExpectedChunks {
		wantChunk[id] = false
	}
	wantDoc := make(map[string]bool, len(q.ExpectedDocs))
	for _, id := range q.ExpectedDocs {
		wantDoc[id] = false
	}

	found := 0
	firstHit := 0
	for i, hit := range hits {
		relevant := false
		if seen, ok := wantChunk[hit.chunkID]; ok {
			relevant = true
			if !seen {
				wantChunk[hit.chunkID] = true
				found++
			}
		}
		if seen, ok := wantDoc[hit.docID]; ok {
			relevant = true
			if !seen {
				wantDoc[hit.docID] = true
				found++
			}
		}
		if relevant && firstHit == 0 {
			firstHit = i + 1
		}
	}

	result := QueryResult{
		Text:     q.Text,
		FirstHit: firstHit,
		Found:    found,
		Expected: q.Expected(),
		Returned: len(hits),
	}
	if result.Expected > 0 {
		result.Recall = float64(found) / float64(result.Expected)
	}
	if firstHit > 0 {
		result.ReciprocalRank = 1 / float64(firstHit)
	}
	return result
}

// buildReport averages the scored queries; errored ones only count
// toward Failed.
func buildReport(set, ranker string, topK int, results []QueryResult, elapsed time.Duration) *Report {
	report := &Report{
		Set:      set,
		Ranker:   ranker,
		TopK:     topK,
		Queries:  len(results),
		Results:  results,
		Duration: elapsed,
	}

	scored := 0
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
			continue
		}
		scored++
		report.Recall += r.Recall
		report.MRR += r.ReciprocalRank
	}
	if scored > 0 {
		report.Recall /= float64(scored)
		report.MRR /= float64(scored)
	}
	return report
}

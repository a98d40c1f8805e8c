package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveindex "github.com/blevesearch/bleve_index_api"

	"github.com/lexhaven/vecsync/internal/chunk"
	"github.com/lexhaven/vecsync/internal/corpus"
)

// baselineBatchSize is how many chunks go into one bleve batch.
const baselineBatchSize = 256

// baselineDoc is the shape bleve indexes per chunk.
type baselineDoc struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Baseline scores a query set with lexical BM25 ranking instead of
// embeddings. It chunks the corpus exactly the way the reindexer does
// and indexes the chunks into an in-memory bleve index, so the
// comparison isolates the ranking function: same chunks, same queries,
// different retrieval.
type Baseline struct {
	index   bleve.Index
	chunker *chunk.Chunker
	chunks  int
}

// NewBaseline builds an empty in-memory BM25 index. Call IndexCorpus
// before Run.
func NewBaseline(chunker *chunk.Chunker) (*Baseline, error) {
	if chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}

	idx, err := bleve.NewMemOnly(baselineMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bm25 index: %w", err)
	}
	return &Baseline{index: idx, chunker: chunker}, nil
}

// baselineMapping analyzes chunk text with the English analyzer and
// keeps the document id as an unanalyzed stored field. Bleve scores
// with tf-idf unless told otherwise; the baseline exists to measure
// BM25, so the scoring model is set explicitly.
func baselineMapping() *mapping.IndexMappingImpl {
	text := bleve.NewTextFieldMapping()
	docID := bleve.NewKeywordFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("document_id", docID)

	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = en.AnalyzerName
	m.DefaultMapping = doc
	m.ScoringModel = bleveindex.BM25Scoring
	return m
}

// IndexCorpus chunks every document the source yields and indexes the
// chunks. It returns the number of chunks indexed. Read errors fail the
// build: a baseline over a partial corpus would skew the comparison.
func (b *Baseline) IndexCorpus(ctx context.Context, source corpus.Source) (int, error) {
	results, err := source.Enumerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate corpus: %w", err)
	}
	// Drain on early return so the source goroutine can finish.
	defer func() {
		for range results {
		}
	}()

	total := 0
	batch := b.index.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index bm25 batch: %w", err)
		}
		batch = b.index.NewBatch()
		return nil
	}

	for res := range results {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if res.Err != nil {
			return 0, fmt.Errorf("failed to read corpus document: %w", res.Err)
		}

		chunks, err := b.chunker.Chunk(res.Doc.ID, res.Doc.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to chunk %s: %w", res.Doc.ID, err)
		}
		for _, c := range chunks {
			if err := batch.Index(c.ID, baselineDoc{DocumentID: c.DocumentID, Text: c.Text}); err != nil {
				return 0, fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
			}
			total++
		}
		if batch.Size() >= baselineBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}

	b.chunks = total
	slog.Info("bm25_baseline_indexed",
		slog.String("source", source.Name()),
		slog.Int("chunks", total))
	return total, nil
}

// Run scores every query in the set with BM25 over the indexed chunks.
func (b *Baseline) Run(ctx context.Context, set *QuerySet, topK int) (*Report, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if b.chunks == 0 {
		return nil, fmt.Errorf("baseline index is empty, index a corpus first")
	}

	started := time.Now()
	results := make([]QueryResult, 0, len(set.Queries))
	for _, q := range set.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, b.runQuery(ctx, q, topK))
	}

	report := buildReport(set.Name, "bm25", topK, results, time.Since(started))
	slog.Info("eval_complete",
		slog.String("set", report.Set),
		slog.String("ranker", report.Ranker),
		slog.Float64("recall", report.Recall),
		slog.Float64("mrr", report.MRR),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (b *Baseline) runQuery(ctx context.Context, q Query, topK int) QueryResult {
	match := bleve.NewMatchQuery(q.Text)
	match.SetField("text")

	req := bleve.NewSearchRequest(match)
	req.Size = topK
	req.Fields = []string{"document_id"}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return QueryResult{Text: q.Text, Expected: q.Expected(), Err: fmt.Errorf("bm25 search: %w", err)}
	}

	hits := make([]rankedHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		docID, _ := hit.Fields["document_id"].(string)
		hits = append(hits, rankedHit{chunkID: hit.ID, docID: docID})
	}
	return scoreQuery(q, hits)
}

// Chunks reports how many chunks the baseline has indexed.
func (b *Baseline) Chunks() int {
	return b.chunks
}

// Close releases the in-memory index.
func (b *Baseline) Close() error {
	return b.index.Close()
}

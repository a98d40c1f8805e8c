package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexhaven/vecsync/internal/chunk"
	"github.com/lexhaven/vecsync/internal/corpus"
	"github.com/lexhaven/vecsync/internal/embed"
	syncerrors "github.com/lexhaven/vecsync/internal/errors"
	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
	"github.com/lexhaven/vecsync/internal/ui"
)

// DefaultWorkers is the default document-level worker pool size.
const DefaultWorkers = 4

// Options tunes a reindexing pass.
type Options struct {
	// Workers is the document-level worker pool size (default: 4).
	Workers int

	// MaxRetries per embed, upsert, or delete call (default: 3).
	MaxRetries int

	// RetryDelay is the initial backoff delay (default: 500ms).
	RetryDelay time.Duration

	// EmbedBatchSize is the number of chunk texts per embedding request
	// (default: embed.DefaultBatchSize).
	EmbedBatchSize int

	// LockDir is where the pass lock file lives, typically the registry
	// directory. Empty disables cross-process locking.
	LockDir string
}

// Dependencies contains the injected collaborators for a Reindexer.
type Dependencies struct {
	// Source enumerates corpus documents (required).
	Source corpus.Source

	// Chunker splits document content into retrievable units (required).
	Chunker *chunk.Chunker

	// Embedder turns chunk text into vectors (required).
	Embedder embed.Embedder

	// Index is the vector index client (required).
	Index index.Client

	// Registry stores per-document indexing state (required).
	Registry registry.Registry

	// History records completed passes for status output (optional).
	History registry.PassHistory

	// Renderer for progress display (required).
	Renderer ui.Renderer
}

// Reindexer executes selective reindexing passes. It accepts injected
// dependencies for testability and reusability.
type Reindexer struct {
	source   corpus.Source
	chunker  *chunk.Chunker
	embedder embed.Embedder
	index    index.Client
	registry registry.Registry
	history  registry.PassHistory
	renderer ui.Renderer
	opts     Options
	retry    syncerrors.RetryConfig
}

// New creates a Reindexer with injected dependencies.
func New(deps Dependencies, opts Options) (*Reindexer, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("corpus source is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index client is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = embed.DefaultBatchSize
	}

	retry := syncerrors.DefaultRetryConfig()
	if opts.MaxRetries > 0 {
		retry.MaxRetries = opts.MaxRetries
	}
	if opts.RetryDelay > 0 {
		retry.InitialDelay = opts.RetryDelay
	}

	return &Reindexer{
		source:   deps.Source,
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		index:    deps.Index,
		registry: deps.Registry,
		history:  deps.History,
		renderer: deps.Renderer,
		opts:     opts,
		retry:    retry,
	}, nil
}

// Run executes one selective pass: scan, diff, remove, index, commit.
//
// Cancelling ctx stops the pass cleanly: documents already dispatched
// finish and commit, no new documents start, and the partial summary is
// returned alongside the context error. Document-level failures never
// fail the pass; registry storage failures do.
func (r *Reindexer) Run(ctx context.Context) (*PassSummary, error) {
	unlock, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return r.runLocked(ctx)
}

// Full clears the registry and deletes every tracked vector, then runs
// a pass that rebuilds the index from scratch.
func (r *Reindexer) Full(ctx context.Context) (*PassSummary, error) {
	unlock, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := r.purge(ctx); err != nil {
		return nil, err
	}
	return r.runLocked(ctx)
}

// Plan reports what a pass would do without touching the index or the
// registry.
func (r *Reindexer) Plan(ctx context.Context) (*registry.DiffResult, error) {
	docs, _, err := r.scanCorpus(ctx)
	if err != nil {
		return nil, err
	}

	fingerprints := make(map[string]string, len(docs))
	for id, doc := range docs {
		fingerprints[id] = doc.Fingerprint
	}

	diff, err := r.registry.Diff(ctx, fingerprints)
	if err != nil {
		return nil, err
	}
	return &diff, nil
}

// acquireLock takes the cross-process pass lock when LockDir is set.
func (r *Reindexer) acquireLock() (func(), error) {
	if r.opts.LockDir == "" {
		return func() {}, nil
	}

	lock := NewPassLock(r.opts.LockDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release pass lock", slog.String("error", err.Error()))
		}
	}, nil
}

// runLocked executes the pass pipeline. The caller holds the pass lock.
func (r *Reindexer) runLocked(ctx context.Context) (*PassSummary, error) {
	summary := &PassSummary{
		PassID:    uuid.NewString(),
		StartedAt: time.Now(),
	}

	slog.Info("reindex_pass_started",
		slog.String("pass_id", summary.PassID),
		slog.String("source", r.source.Name()),
		slog.String("index", r.index.Name()))

	if err := r.preflight(ctx); err != nil {
		return nil, err
	}

	// Stage 1: scan the corpus.
	scanStart := time.Now()
	docs, readErrors, err := r.scanCorpus(ctx)
	if err != nil {
		return nil, err
	}
	summary.Timings.Scan = time.Since(scanStart)

	// Stage 2: diff fingerprints against the registry.
	diffStart := time.Now()
	diff, err := r.diffCorpus(ctx, docs)
	if err != nil {
		return nil, err
	}
	summary.Timings.Diff = time.Since(diffStart)
	summary.Unchanged = len(diff.Unchanged)

	// Unchanged documents are settled; release their content early.
	for _, id := range diff.Unchanged {
		delete(docs, id)
	}

	// Stage 3: removals run before additions so queries stop returning
	// chunks for documents the corpus no longer has. A scan with read
	// errors cannot tell a deleted document from an unreadable one, so
	// removals wait for a clean scan.
	removeStart := time.Now()
	if readErrors > 0 && len(diff.Removed) > 0 {
		summary.RemovalsDeferred = len(diff.Removed)
		r.renderer.AddError(ui.ErrorEvent{
			Err: fmt.Errorf("deferring %d removals: corpus scan reported %d read errors",
				len(diff.Removed), readErrors),
			IsWarn: true,
		})
		slog.Warn("reindex_removals_deferred",
			slog.Int("removals", len(diff.Removed)),
			slog.Int("read_errors", readErrors))
	} else if fatal := r.processRemovals(ctx, diff.Removed, summary); fatal != nil {
		summary.FinishedAt = time.Now()
		return summary, fatal
	}
	summary.Timings.Remove = time.Since(removeStart)

	// Stage 4: chunk, embed, upsert, delete-stale, commit for added and
	// changed documents.
	indexStart := time.Now()
	fatal := r.processDocuments(ctx, diff, docs, summary)
	summary.Timings.Index = time.Since(indexStart)

	summary.FinishedAt = time.Now()
	summary.Interrupted = ctx.Err() != nil

	if fatal != nil {
		return summary, fatal
	}

	r.complete(ctx, summary)

	if summary.Interrupted {
		return summary, ctx.Err()
	}
	return summary, nil
}

// preflight verifies every collaborator before the pass mutates
// anything: the embedder answers, the index exists with the right
// dimension, and the registry is readable.
func (r *Reindexer) preflight(ctx context.Context) error {
	if !r.embedder.Available(ctx) {
		return syncerrors.New(syncerrors.ErrCodeEmbedUnavailable,
			fmt.Sprintf("embedder %s is not available", r.embedder.ModelName()), nil).
			WithSuggestion("check the embedding backend configuration and credentials")
	}

	if err := r.index.EnsureIndex(ctx, r.embedder.Dimensions()); err != nil {
		return err
	}

	if _, err := r.registry.Count(ctx); err != nil {
		return err
	}
	return nil
}

// scanCorpus enumerates the source and returns documents keyed by id,
// plus the number of per-document read errors. Read errors are reported
// as warnings; the affected documents are simply absent this pass.
func (r *Reindexer) scanCorpus(ctx context.Context) (map[string]*corpus.Document, int, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning corpus (%s)...", r.source.Name()),
	})
	slog.Info("reindex_scan_started", slog.String("source", r.source.Name()))

	results, err := r.source.Enumerate(ctx)
	if err != nil {
		return nil, 0, err
	}

	docs := make(map[string]*corpus.Document)
	readErrors := 0
	for res := range results {
		if res.Err != nil {
			readErrors++
			r.renderer.AddError(ui.ErrorEvent{Err: res.Err, IsWarn: true})
			continue
		}
		docs[res.Doc.ID] = res.Doc
	}
	if err := ctx.Err(); err != nil {
		return nil, readErrors, err
	}

	slog.Info("reindex_scan_complete",
		slog.Int("documents", len(docs)),
		slog.Int("read_errors", readErrors))
	return docs, readErrors, nil
}

// diffCorpus partitions the scanned documents against the registry.
func (r *Reindexer) diffCorpus(ctx context.Context, docs map[string]*corpus.Document) (*registry.DiffResult, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageDiffing,
		Message: "Comparing fingerprints against registry...",
	})

	fingerprints := make(map[string]string, len(docs))
	for id, doc := range docs {
		fingerprints[id] = doc.Fingerprint
	}

	diff, err := r.registry.Diff(ctx, fingerprints)
	if err != nil {
		return nil, err
	}

	slog.Info("reindex_diff_complete",
		slog.Int("added", len(diff.Added)),
		slog.Int("changed", len(diff.Changed)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("unchanged", len(diff.Unchanged)))
	return &diff, nil
}

// processRemovals deletes vectors and registry records for documents no
// longer in the corpus. A removal failure is per-document: the registry
// record survives and the next pass retries it.
func (r *Reindexer) processRemovals(ctx context.Context, removed []string, summary *PassSummary) error {
	if len(removed) == 0 {
		return nil
	}

	slog.Info("reindex_remove_started", slog.Int("documents", len(removed)))

	var (
		mu   sync.Mutex
		done atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	// Removals already dispatched run to completion on their own call
	// timeouts; cancellation only stops new dispatches.
	docCtx := context.WithoutCancel(ctx)

	for _, id := range removed {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			outcome, fatal := r.removeDocument(docCtx, id)
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:      ui.StageRemoving,
				Current:    int(done.Add(1)),
				Total:      len(removed),
				CurrentDoc: id,
			})

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, outcome)
			summary.ChunksDeleted += outcome.ChunksDeleted
			if outcome.Failed() {
				summary.Failed++
				r.renderer.AddError(ui.ErrorEvent{Document: id, Err: outcome.Err})
			} else if fatal == nil {
				summary.Removed++
			}
			return fatal
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("reindex_remove_complete", slog.Int("documents", summary.Removed))
	return nil
}

// removeDocument deletes a document's vectors, then its registry
// record. The record goes last so a partial failure leaves the next
// pass enough state to retry the removal.
func (r *Reindexer) removeDocument(ctx context.Context, documentID string) (DocumentOutcome, error) {
	start := time.Now()
	outcome := DocumentOutcome{DocumentID: documentID, Action: ActionRemove}

	rec, exists, err := r.registry.Get(ctx, documentID)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome, err
	}
	if !exists {
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	if len(rec.ChunkIDs) > 0 {
		err := syncerrors.Retry(ctx, r.retry, func() error {
			return r.index.Delete(ctx, rec.ChunkIDs)
		})
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(start)
			return outcome, nil
		}
		outcome.ChunksDeleted = len(rec.ChunkIDs)
	}

	// Sweep vectors the record does not list, left behind by earlier
	// interrupted passes.
	err = syncerrors.Retry(ctx, r.retry, func() error {
		return r.index.DeleteByFilter(ctx, index.Filter{index.MetaDocumentID: documentID})
	})
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	if err := r.registry.Delete(ctx, documentID); err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome, err
	}

	outcome.Duration = time.Since(start)
	return outcome, nil
}

// processDocuments runs added and changed documents through the
// indexing pipeline on a bounded worker pool.
func (r *Reindexer) processDocuments(ctx context.Context, diff *registry.DiffResult, docs map[string]*corpus.Document, summary *PassSummary) error {
	total := len(diff.Added) + len(diff.Changed)
	if total == 0 {
		return nil
	}

	slog.Info("reindex_index_started",
		slog.Int("added", len(diff.Added)),
		slog.Int("changed", len(diff.Changed)),
		slog.Int("workers", r.opts.Workers))

	type job struct {
		id     string
		action Action
	}
	jobs := make([]job, 0, total)
	for _, id := range diff.Added {
		jobs = append(jobs, job{id: id, action: ActionAdd})
	}
	for _, id := range diff.Changed {
		jobs = append(jobs, job{id: id, action: ActionUpdate})
	}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	// In-flight documents drain to their commit on cancellation; every
	// client call below carries its own timeout.
	docCtx := context.WithoutCancel(ctx)

	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			outcome, fatal := r.processDocument(docCtx, docs[j.id], j.action)
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:      ui.StageIndexing,
				Current:    int(done.Add(1)),
				Total:      total,
				CurrentDoc: j.id,
			})

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, outcome)
			summary.ChunksWritten += outcome.ChunksWritten
			summary.ChunksDeleted += outcome.ChunksDeleted
			if outcome.Failed() {
				summary.Failed++
				r.renderer.AddError(ui.ErrorEvent{Document: j.id, Err: outcome.Err})
			} else if fatal == nil {
				switch j.action {
				case ActionAdd:
					summary.Added++
				case ActionUpdate:
					summary.Changed++
				}
			}
			return fatal
		})
	}

	return g.Wait()
}

// processDocument runs one document through chunk, embed, upsert,
// delete-stale, commit. New vectors are written before stale ones are
// deleted, so a failure at any point leaves extra chunks in the index
// rather than missing ones. The registry commit comes last: a failed
// document keeps its pre-pass record and is retried on the next pass.
func (r *Reindexer) processDocument(ctx context.Context, doc *corpus.Document, action Action) (DocumentOutcome, error) {
	start := time.Now()
	outcome := DocumentOutcome{DocumentID: doc.ID, Action: action}

	prev, _, err := r.registry.Get(ctx, doc.ID)
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome, err
	}

	chunks, err := r.chunker.Chunk(doc.ID, doc.Content)
	if err != nil {
		outcome.Err = syncerrors.New(syncerrors.ErrCodeChunkingFailed,
			fmt.Sprintf("chunking %s failed", doc.ID), err)
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	// A document with no extractable text keeps a zero-chunk record so
	// it stays settled until its content changes again.
	if len(chunks) == 0 {
		fatal := r.finishDocument(ctx, &outcome, doc, nil, prev.ChunkIDs)
		outcome.Duration = time.Since(start)
		return outcome, fatal
	}

	vectors, embedFailed := r.embedChunks(ctx, chunks)

	newIDs := make([]string, 0, len(chunks))
	entries := make([]index.Entry, 0, len(chunks))
	for i, c := range chunks {
		newIDs = append(newIDs, c.ID)
		if vectors[i] == nil {
			continue
		}
		entries = append(entries, index.Entry{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Metadata: map[string]any{
				index.MetaDocumentID:     c.DocumentID,
				index.MetaSequenceIndex:  c.SequenceIndex,
				index.MetaSourceURI:      doc.SourcePath,
				index.MetaCollection:     doc.Collection,
				index.MetaDocFingerprint: doc.Fingerprint,
				index.MetaText:           c.Text,
			},
		})
	}

	// Upsert what embedded even when some chunks failed: re-upserting
	// next pass is idempotent, and partial progress survives.
	if len(entries) > 0 {
		err := syncerrors.Retry(ctx, r.retry, func() error {
			return r.index.Upsert(ctx, entries)
		})
		if err != nil {
			outcome.Err = err
			outcome.Duration = time.Since(start)
			return outcome, nil
		}
		outcome.ChunksWritten = len(entries)
	}

	if embedFailed > 0 {
		outcome.Err = syncerrors.EmbeddingError(
			fmt.Sprintf("embedding failed for %d of %d chunks", embedFailed, len(chunks)), nil)
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	fatal := r.finishDocument(ctx, &outcome, doc, newIDs, prev.ChunkIDs)
	outcome.Duration = time.Since(start)
	return outcome, fatal
}

// finishDocument deletes stale vectors and commits the new record. The
// commit is the linearization point: a failure before it leaves the old
// record in place, and a commit failure aborts the pass because the
// registry can no longer be trusted to mirror the index.
func (r *Reindexer) finishDocument(ctx context.Context, outcome *DocumentOutcome, doc *corpus.Document, newIDs, prevIDs []string) error {
	stale := staleIDs(prevIDs, newIDs)
	if len(stale) > 0 {
		err := syncerrors.Retry(ctx, r.retry, func() error {
			return r.index.Delete(ctx, stale)
		})
		if err != nil {
			outcome.Err = err
			return nil
		}
		outcome.ChunksDeleted = len(stale)
	}

	if err := r.registry.Commit(ctx, doc.ID, doc.Fingerprint, newIDs); err != nil {
		outcome.Err = err
		return err
	}
	return nil
}

// embedChunks embeds chunk texts in batches. When a whole batch fails
// after retries, each of its chunks is retried alone so one poisoned
// text cannot sink its batch siblings. The result is positional:
// vectors[i] is nil when chunks[i] failed, and failed counts the nils.
func (r *Reindexer) embedChunks(ctx context.Context, chunks []*chunk.Chunk) (vectors [][]float32, failed int) {
	vectors = make([][]float32, len(chunks))

	for start := 0; start < len(chunks); start += r.opts.EmbedBatchSize {
		end := start + r.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		got, err := syncerrors.RetryWithResult(ctx, r.retry, func() ([][]float32, error) {
			return r.embedder.EmbedBatch(ctx, texts)
		})
		if err == nil && len(got) == len(batch) {
			copy(vectors[start:end], got)
			continue
		}

		for i, c := range batch {
			vec, err := syncerrors.RetryWithResult(ctx, r.retry, func() ([]float32, error) {
				return r.embedder.Embed(ctx, c.Text)
			})
			if err != nil {
				failed++
				slog.Warn("chunk embedding failed",
					slog.String("document", c.DocumentID),
					slog.Int("sequence", c.SequenceIndex),
					slog.String("error", err.Error()))
				continue
			}
			vectors[start+i] = vec
		}
	}
	return vectors, failed
}

// purge drops every tracked vector and clears the registry.
func (r *Reindexer) purge(ctx context.Context) error {
	records, err := r.registry.List(ctx)
	if err != nil {
		return err
	}

	var ids []string
	for _, rec := range records {
		ids = append(ids, rec.ChunkIDs...)
	}
	if len(ids) > 0 {
		err := syncerrors.Retry(ctx, r.retry, func() error {
			return r.index.Delete(ctx, ids)
		})
		if err != nil {
			return err
		}
	}

	if err := r.registry.Clear(ctx); err != nil {
		return err
	}

	slog.Info("registry_purged",
		slog.Int("documents", len(records)),
		slog.Int("chunks", len(ids)))
	return nil
}

// complete reports the finished pass to the renderer, the pass history,
// and the log.
func (r *Reindexer) complete(ctx context.Context, summary *PassSummary) {
	duration := summary.Duration()
	embedderInfo := embed.GetInfo(ctx, r.embedder)

	r.renderer.Complete(ui.CompletionStats{
		Added:     summary.Added,
		Changed:   summary.Changed,
		Removed:   summary.Removed,
		Unchanged: summary.Unchanged,
		Failed:    summary.Failed,
		Chunks:    summary.ChunksWritten,
		Duration:  duration,
		Errors:    summary.Failed,
		Warnings:  summary.RemovalsDeferred,
		Stages: ui.StageTimings{
			Scan:   summary.Timings.Scan,
			Diff:   summary.Timings.Diff,
			Remove: summary.Timings.Remove,
			Index:  summary.Timings.Index,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    string(embedderInfo.Provider),
			Model:      embedderInfo.Model,
			Dimensions: embedderInfo.Dimensions,
		},
	})

	if r.history != nil {
		rec := registry.PassRecord{
			PassID:       summary.PassID,
			StartedAt:    summary.StartedAt,
			FinishedAt:   summary.FinishedAt,
			Added:        summary.Added,
			Changed:      summary.Changed,
			Removed:      summary.Removed,
			Unchanged:    summary.Unchanged,
			Failed:       summary.Failed,
			FailedDocIDs: summary.FailedDocumentIDs(),
		}
		// An interrupted pass still records: the history write must not
		// die with the cancelled pass context.
		if err := r.history.AppendPass(context.WithoutCancel(ctx), rec); err != nil {
			slog.Warn("failed to record pass history", slog.String("error", err.Error()))
		}
	}

	chunksPerSec := 0.0
	if summary.Timings.Index.Seconds() > 0 {
		chunksPerSec = float64(summary.ChunksWritten) / summary.Timings.Index.Seconds()
	}

	slog.Info("reindex_pass_complete",
		slog.String("pass_id", summary.PassID),
		slog.Int("added", summary.Added),
		slog.Int("changed", summary.Changed),
		slog.Int("removed", summary.Removed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("failed", summary.Failed),
		slog.Int("chunks_written", summary.ChunksWritten),
		slog.Int("chunks_deleted", summary.ChunksDeleted),
		slog.String("duration_total", duration.String()),
		slog.Int64("duration_scan_ms", summary.Timings.Scan.Milliseconds()),
		slog.Int64("duration_diff_ms", summary.Timings.Diff.Milliseconds()),
		slog.Int64("duration_remove_ms", summary.Timings.Remove.Milliseconds()),
		slog.Int64("duration_index_ms", summary.Timings.Index.Milliseconds()),
		slog.Float64("chunks_per_sec", chunksPerSec),
		slog.Bool("interrupted", summary.Interrupted))
}

// staleIDs returns the ids in prev that are absent from next.
func staleIDs(prev, next []string) []string {
	if len(prev) == 0 {
		return nil
	}

	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}

	var stale []string
	for _, id := range prev {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}

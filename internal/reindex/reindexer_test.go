package reindex

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/vecsync/internal/chunk"
	"github.com/lexhaven/vecsync/internal/corpus"
	"github.com/lexhaven/vecsync/internal/embed"
	syncerrors "github.com/lexhaven/vecsync/internal/errors"
	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
	"github.com/lexhaven/vecsync/internal/ui"
)

// Test corpus contents. With MaxChars 40 and the fixed boundary,
// leaseText splits into two chunks and noticeText into one.
const (
	leaseText  = "The lease renews annually unless either party serves notice ninety days ahead."
	noticeText = "Notice must be in writing."
)

// =============================================================================
// Fakes
// =============================================================================

// fakeSource serves a fixed document set, optionally followed by read
// errors, mimicking a partially unreadable corpus.
type fakeSource struct {
	docs     []corpus.Document
	readErrs []error
}

func (s *fakeSource) Enumerate(ctx context.Context) (<-chan corpus.Result, error) {
	ch := make(chan corpus.Result, len(s.docs)+len(s.readErrs))
	for i := range s.docs {
		ch <- corpus.Result{Doc: &s.docs[i]}
	}
	for _, err := range s.readErrs {
		ch <- corpus.Result{Err: err}
	}
	close(ch)
	return ch, nil
}

func (s *fakeSource) Name() string { return "fake" }

// countingEmbedder wraps a real embedder and counts embedding traffic,
// with switches to fail batches or individual texts.
type countingEmbedder struct {
	embed.Embedder
	batchCalls  atomic.Int64
	singleCalls atomic.Int64
	texts       atomic.Int64

	failBatch  bool   // every EmbedBatch call is rejected
	poisonText string // Embed rejects texts containing this
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls.Add(1)
	if c.failBatch {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput, "batch rejected", nil)
	}
	c.texts.Add(int64(len(texts)))
	return c.Embedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.singleCalls.Add(1)
	if c.poisonText != "" && strings.Contains(text, c.poisonText) {
		return nil, syncerrors.New(syncerrors.ErrCodeEmbedInvalidInput, "text rejected", nil)
	}
	c.texts.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) embedTraffic() int64 {
	return c.batchCalls.Load() + c.singleCalls.Load()
}

// fakeIndex is an in-memory index that records write operation order
// and can be told to fail.
type fakeIndex struct {
	mu      sync.Mutex
	dims    int
	entries map[string]index.Entry
	ops     []string

	failUpsertDoc string // Upsert fails for entries of this document
	failDelete    bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[string]index.Entry)}
}

func (f *fakeIndex) EnsureIndex(ctx context.Context, dimensions int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dims = dimensions
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, entries []index.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsertDoc != "" {
		for _, e := range entries {
			if e.Metadata[index.MetaDocumentID] == f.failUpsertDoc {
				return syncerrors.New(syncerrors.ErrCodeIndexQuota, "quota exceeded", nil)
			}
		}
	}
	for _, e := range entries {
		f.entries[e.ChunkID] = e
	}
	f.ops = append(f.ops, "upsert")
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return syncerrors.New(syncerrors.ErrCodeIndexQuota, "delete rejected", nil)
	}
	for _, id := range chunkIDs {
		delete(f.entries, id)
	}
	f.ops = append(f.ops, "delete")
	return nil
}

func (f *fakeIndex) DeleteByFilter(ctx context.Context, filter index.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, e := range f.entries {
		match := true
		for k, v := range filter {
			if fmt.Sprintf("%v", e.Metadata[k]) != v {
				match = false
				break
			}
		}
		if match {
			delete(f.entries, id)
		}
	}
	f.ops = append(f.ops, "filter-delete")
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int, filter index.Filter) ([]index.Match, error) {
	return nil, nil
}

func (f *fakeIndex) Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	present := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		if _, ok := f.entries[id]; ok {
			present[id] = true
		}
	}
	return present, nil
}

func (f *fakeIndex) Stats(ctx context.Context) (index.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return index.Stats{VectorCount: len(f.entries), Dimensions: f.dims}, nil
}

func (f *fakeIndex) Name() string { return "fake" }
func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeIndex) has(chunkID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[chunkID]
	return ok
}

func (f *fakeIndex) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

func (f *fakeIndex) opsSince(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops[n:]...)
}

// drop removes a vector without recording an operation, simulating
// index-side data loss.
func (f *fakeIndex) drop(chunkID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, chunkID)
}

// failingRegistry wraps the memory registry and fails writes on demand.
type failingRegistry struct {
	*registry.MemoryRegistry
	failCommit bool
}

func (f *failingRegistry) Commit(ctx context.Context, documentID, fingerprint string, chunkIDs []string) error {
	if f.failCommit {
		return syncerrors.RegistryError("registry write failed", nil)
	}
	return f.MemoryRegistry.Commit(ctx, documentID, fingerprint, chunkIDs)
}

// =============================================================================
// Rig
// =============================================================================

type rig struct {
	source   *fakeSource
	embedder *countingEmbedder
	idx      *fakeIndex
	reg      *registry.MemoryRegistry
	r        *Reindexer
}

func newRig(t *testing.T, docs ...corpus.Document) *rig {
	t.Helper()
	return newRigOpts(t, Options{}, docs...)
}

func newRigOpts(t *testing.T, opts Options, docs ...corpus.Document) *rig {
	t.Helper()

	source := &fakeSource{docs: docs}
	embedder := &countingEmbedder{Embedder: embed.NewStaticEmbedderWithDimensions(8)}
	idx := newFakeIndex()
	reg := registry.NewMemoryRegistry()

	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}

	r, err := New(Dependencies{
		Source:   source,
		Chunker:  chunk.NewChunkerWithOptions(chunk.Options{MaxChars: 40, Boundary: chunk.BoundaryFixed}),
		Embedder: embedder,
		Index:    idx,
		Registry: reg,
		History:  reg,
		Renderer: ui.NewPlainRenderer(ui.NewConfig(io.Discard)),
	}, opts)
	require.NoError(t, err)

	return &rig{source: source, embedder: embedder, idx: idx, reg: reg, r: r}
}

func testDoc(id, content string) corpus.Document {
	return corpus.Document{
		ID:          id,
		SourcePath:  "/corpus/" + id,
		Collection:  corpus.CollectionFromPath(id),
		Content:     content,
		Fingerprint: corpus.Fingerprint([]byte(content)),
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	base := func() Dependencies {
		return Dependencies{
			Source:   &fakeSource{},
			Chunker:  chunk.NewChunker(),
			Embedder: embed.NewStaticEmbedder(),
			Index:    newFakeIndex(),
			Registry: registry.NewMemoryRegistry(),
			Renderer: ui.NewPlainRenderer(ui.NewConfig(io.Discard)),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
		want   string
	}{
		{"nil source", func(d *Dependencies) { d.Source = nil }, "source"},
		{"nil chunker", func(d *Dependencies) { d.Chunker = nil }, "chunker"},
		{"nil embedder", func(d *Dependencies) { d.Embedder = nil }, "embedder"},
		{"nil index", func(d *Dependencies) { d.Index = nil }, "index"},
		{"nil registry", func(d *Dependencies) { d.Registry = nil }, "registry"},
		{"nil renderer", func(d *Dependencies) { d.Renderer = nil }, "renderer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base()
			tt.mutate(&deps)

			_, err := New(deps, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r, err := New(Dependencies{
		Source:   &fakeSource{},
		Chunker:  chunk.NewChunker(),
		Embedder: embed.NewStaticEmbedder(),
		Index:    newFakeIndex(),
		Registry: registry.NewMemoryRegistry(),
		Renderer: ui.NewPlainRenderer(ui.NewConfig(io.Discard)),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, r.opts.Workers)
	assert.Equal(t, embed.DefaultBatchSize, r.opts.EmbedBatchSize)
	assert.Equal(t, syncerrors.DefaultRetryConfig().MaxRetries, r.retry.MaxRetries)
}

// =============================================================================
// First Pass and Idempotence
// =============================================================================

func TestRun_FirstPassIndexesEverything(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Added)
	assert.Zero(t, summary.Changed)
	assert.Zero(t, summary.Removed)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.PassID)
	assert.Equal(t, 3, summary.ChunksWritten)
	assert.Equal(t, summary.ChunksWritten, rig.idx.count())

	rec, ok, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rig.source.docs[0].Fingerprint, rec.Fingerprint)
	assert.Len(t, rec.ChunkIDs, 2)
	for _, id := range rec.ChunkIDs {
		assert.True(t, rig.idx.has(id))
	}

	passes, err := rig.reg.RecentPasses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, summary.PassID, passes[0].PassID)
	assert.Equal(t, 2, passes[0].Added)
}

func TestRun_SecondPassCostsNothingWhenNothingChanged(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	embeds := rig.embedder.embedTraffic()
	writes := rig.idx.opCount()

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Unchanged)
	assert.Zero(t, summary.Added)
	assert.Zero(t, summary.Changed)
	assert.Zero(t, summary.ChunksWritten)
	assert.Equal(t, embeds, rig.embedder.embedTraffic(),
		"unchanged documents must not be re-embedded")
	assert.Equal(t, writes, rig.idx.opCount(),
		"unchanged documents must not touch the index")
}

// =============================================================================
// Selectivity
// =============================================================================

func TestRun_OnlyChangedDocumentIsReprocessed(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	oldLease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	notice, _, err := rig.reg.Get(ctx, "notice.md")
	require.NoError(t, err)

	// Appending text leaves the first fixed window intact, so the first
	// chunk keeps its content-derived id.
	rig.source.docs[0] = testDoc("lease.md", leaseText+" Renewal requires board approval.")
	texts := rig.embedder.texts.Load()

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Zero(t, summary.Failed)

	newLease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.NotEqual(t, oldLease.Fingerprint, newLease.Fingerprint)
	assert.Equal(t, oldLease.ChunkIDs[0], newLease.ChunkIDs[0],
		"an unchanged leading chunk keeps its id")

	assert.False(t, rig.idx.has(oldLease.ChunkIDs[1]), "stale chunk must be deleted")
	for _, id := range newLease.ChunkIDs {
		assert.True(t, rig.idx.has(id))
	}
	for _, id := range notice.ChunkIDs {
		assert.True(t, rig.idx.has(id), "untouched documents keep their vectors")
	}

	embedded := rig.embedder.texts.Load() - texts
	assert.Equal(t, int64(len(newLease.ChunkIDs)), embedded,
		"only the changed document's chunks are embedded")
}

func TestRun_RemovedDocumentLosesVectorsAndRecord(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	removed, _, err := rig.reg.Get(ctx, "notice.md")
	require.NoError(t, err)

	rig.source.docs = rig.source.docs[:1]

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, len(removed.ChunkIDs), summary.ChunksDeleted)

	_, ok, err := rig.reg.Get(ctx, "notice.md")
	require.NoError(t, err)
	assert.False(t, ok, "registry record must be gone")
	for _, id := range removed.ChunkIDs {
		assert.False(t, rig.idx.has(id))
	}

	n, err := rig.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// Write Ordering and Failure Containment
// =============================================================================

func TestRun_NewVectorsLandBeforeStaleOnesLeave(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	mark := rig.idx.opCount()
	rig.source.docs[0] = testDoc("lease.md",
		"Entirely new obligations replace the original schedule of payments due.")

	_, err = rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"upsert", "delete"}, rig.idx.opsSince(mark),
		"the index must never be missing chunks, only holding extra ones")
}

func TestRun_UpsertFailureLeavesOldGenerationIntact(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)
	oldLease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)

	rig.source.docs[0] = testDoc("lease.md", leaseText+" Amended twice over.")
	rig.idx.failUpsertDoc = "lease.md"

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err, "a document failure must not fail the pass")

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, []string{"lease.md"}, summary.FailedDocumentIDs())

	rec, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.Equal(t, oldLease.Fingerprint, rec.Fingerprint, "record must stay at pre-pass state")
	for _, id := range oldLease.ChunkIDs {
		assert.True(t, rig.idx.has(id), "old vectors must survive a failed update")
	}
}

func TestRun_StaleDeleteFailureKeepsOldRecordUntilConverged(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)
	oldLease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)

	rig.source.docs[0] = testDoc("lease.md",
		"Entirely new obligations replace the original schedule of payments due.")
	rig.idx.failDelete = true

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// Both generations coexist and the registry still promises the old
	// one. Extra chunks, never missing ones.
	rec, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.Equal(t, oldLease.Fingerprint, rec.Fingerprint)
	for _, id := range oldLease.ChunkIDs {
		assert.True(t, rig.idx.has(id))
	}
	assert.Greater(t, rig.idx.count(), len(oldLease.ChunkIDs))

	// The next clean pass converges.
	rig.idx.failDelete = false
	summary, err = rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)

	rec, _, err = rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.NotEqual(t, oldLease.Fingerprint, rec.Fingerprint)
	for _, id := range oldLease.ChunkIDs {
		assert.False(t, rig.idx.has(id))
	}
	assert.Equal(t, len(rec.ChunkIDs), rig.idx.count())
}

func TestRun_PoisonedChunkFailsDocumentButSiblingsPersist(t *testing.T) {
	content := leaseText[:40] + " The POISON clause voids this entire agreement when invoked."
	rig := newRig(t, testDoc("lease.md", content))
	rig.embedder.failBatch = true
	rig.embedder.poisonText = "POISON"
	ctx := context.Background()

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Added)
	assert.Equal(t, 2, summary.ChunksWritten, "clean siblings are still written")

	_, ok, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.False(t, ok, "a partially embedded document must not commit")

	// Once the backend accepts the text again, the next pass completes
	// the document.
	rig.embedder.poisonText = ""
	summary, err = rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)

	rec, ok, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rec.ChunkIDs, 3)
}

func TestRun_BatchEmbedFailureFallsBackPerChunk(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	rig.embedder.failBatch = true

	summary, err := rig.r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Added)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 2, summary.ChunksWritten)
	assert.Positive(t, rig.embedder.singleCalls.Load())
}

func TestRun_RegistryWriteFailureAbortsPass(t *testing.T) {
	reg := &failingRegistry{MemoryRegistry: registry.NewMemoryRegistry(), failCommit: true}
	r, err := New(Dependencies{
		Source:   &fakeSource{docs: []corpus.Document{testDoc("lease.md", leaseText)}},
		Chunker:  chunk.NewChunkerWithOptions(chunk.Options{MaxChars: 40, Boundary: chunk.BoundaryFixed}),
		Embedder: embed.NewStaticEmbedderWithDimensions(8),
		Index:    newFakeIndex(),
		Registry: reg,
		Renderer: ui.NewPlainRenderer(ui.NewConfig(io.Discard)),
	}, Options{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodeRegistryUnavailable, syncerrors.GetCode(err))
	require.NotNil(t, summary, "a fatal pass still reports what happened")
	assert.Equal(t, 1, summary.Failed)

	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing may be committed once the registry fails")
}

// =============================================================================
// Empty Documents and Untrusted Scans
// =============================================================================

func TestRun_EmptiedDocumentCommitsZeroChunks(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)
	oldLease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)

	rig.source.docs[0] = testDoc("lease.md", " \n\t\n")

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)

	rec, ok, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	require.True(t, ok, "an emptied document keeps a record")
	assert.Empty(t, rec.ChunkIDs)
	assert.Equal(t, rig.source.docs[0].Fingerprint, rec.Fingerprint)

	for _, id := range oldLease.ChunkIDs {
		assert.False(t, rig.idx.has(id))
	}
	assert.Zero(t, rig.idx.count())

	// The empty state is settled; the next pass skips it.
	summary, err = rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unchanged)
}

func TestRun_ReadErrorsDeferRemovals(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	// notice.md vanishes from the scan, but the scan also reports a
	// read error: the disappearance cannot be trusted.
	rig.source.docs = rig.source.docs[:1]
	rig.source.readErrs = []error{syncerrors.CorpusError("failed to read notice.md", nil)}

	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Removed)
	assert.Equal(t, 1, summary.RemovalsDeferred)

	_, ok, err := rig.reg.Get(ctx, "notice.md")
	require.NoError(t, err)
	assert.True(t, ok, "record must survive an untrusted disappearance")

	// A clean scan confirms the removal.
	rig.source.readErrs = nil
	summary, err = rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)
}

// =============================================================================
// Plan, Full, Cancellation, Locking
// =============================================================================

func TestPlan_ReportsWithoutMutating(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	rig.source.docs = []corpus.Document{
		testDoc("lease.md", leaseText+" Amended."),
		testDoc("handbook.md", "Salaries are reviewed each April."),
	}
	embeds := rig.embedder.embedTraffic()
	writes := rig.idx.opCount()

	diff, err := rig.r.Plan(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"handbook.md"}, diff.Added)
	assert.Equal(t, []string{"lease.md"}, diff.Changed)
	assert.Equal(t, []string{"notice.md"}, diff.Removed)
	assert.Empty(t, diff.Unchanged)

	assert.Equal(t, embeds, rig.embedder.embedTraffic())
	assert.Equal(t, writes, rig.idx.opCount())
	n, err := rig.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFull_PurgesThenRebuilds(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	first, err := rig.r.Run(ctx)
	require.NoError(t, err)

	summary, err := rig.r.Full(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Added, "a full pass reprocesses everything")
	assert.Equal(t, first.ChunksWritten, summary.ChunksWritten)
	assert.Equal(t, summary.ChunksWritten, rig.idx.count())

	n, err := rig.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// cancellingEmbedder cancels the pass context on its first batch, as if
// the user interrupted mid-embed.
type cancellingEmbedder struct {
	embed.Embedder
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.once.Do(c.cancel)
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestRun_CancellationDrainsInFlightAndStartsNoMore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewMemoryRegistry()
	r, err := New(Dependencies{
		Source: &fakeSource{docs: []corpus.Document{
			testDoc("a.md", leaseText),
			testDoc("b.md", noticeText),
			testDoc("c.md", "Cancellation drains, it does not abandon."),
		}},
		Chunker:  chunk.NewChunkerWithOptions(chunk.Options{MaxChars: 40, Boundary: chunk.BoundaryFixed}),
		Embedder: &cancellingEmbedder{Embedder: embed.NewStaticEmbedderWithDimensions(8), cancel: cancel},
		Index:    newFakeIndex(),
		Registry: reg,
		History:  reg,
		Renderer: ui.NewPlainRenderer(ui.NewConfig(io.Discard)),
	}, Options{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	require.NoError(t, err)

	summary, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Added, "the in-flight document finishes and commits")
	assert.Zero(t, summary.Failed)

	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_SecondPassBlockedWhileLockHeld(t *testing.T) {
	dir := t.TempDir()
	rig := newRigOpts(t, Options{LockDir: dir}, testDoc("lease.md", leaseText))

	other := NewPassLock(dir)
	require.NoError(t, other.Acquire())

	_, err := rig.r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodePassLocked, syncerrors.GetCode(err))

	require.NoError(t, other.Release())

	_, err = rig.r.Run(context.Background())
	require.NoError(t, err)
}

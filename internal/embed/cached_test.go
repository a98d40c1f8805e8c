package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps a static embedder and counts provider calls.
type countingEmbedder struct {
	inner      Embedder
	model      string
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	batchTexts atomic.Int64
}

func newCountingEmbedder(model string) *countingEmbedder {
	return &countingEmbedder{inner: NewStaticEmbedderWithDimensions(32), model: model}
}

func (f *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls.Add(1)
	return f.inner.Embed(ctx, text)
}

func (f *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls.Add(1)
	f.batchTexts.Add(int64(len(texts)))
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *countingEmbedder) Dimensions() int { return f.inner.Dimensions() }

func (f *countingEmbedder) ModelName() string { return f.model }

func (f *countingEmbedder) Available(ctx context.Context) bool { return true }

func (f *countingEmbedder) Close() error { return f.inner.Close() }

// =============================================================================
// Cache Hit/Miss Tests
// =============================================================================

func TestCachedEmbedder_SecondCallHitsCache(t *testing.T) {
	fake := newCountingEmbedder("m1")
	cached, err := NewCachedEmbedder(fake, 16)
	require.NoError(t, err)
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "notice period")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "notice period")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), fake.embedCalls.Load(), "second call must not reach the provider")

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCachedEmbedder_BatchForwardsOnlyMisses(t *testing.T) {
	fake := newCountingEmbedder("m1")
	cached, err := NewCachedEmbedder(fake, 16)
	require.NoError(t, err)
	ctx := context.Background()

	// Given: one text already cached
	_, err = cached.Embed(ctx, "cached text")
	require.NoError(t, err)

	// When: a batch mixes the cached text with two new ones
	vecs, err := cached.EmbedBatch(ctx, []string{"new one", "cached text", "new two"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Then: only the two misses reached the provider
	assert.Equal(t, int64(1), fake.batchCalls.Load())
	assert.Equal(t, int64(2), fake.batchTexts.Load())

	direct, err := fake.inner.Embed(ctx, "cached text")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[1], "cached vector lands at its input position")
}

func TestCachedEmbedder_FullyCachedBatchSkipsProvider(t *testing.T) {
	fake := newCountingEmbedder("m1")
	cached, err := NewCachedEmbedder(fake, 16)
	require.NoError(t, err)
	ctx := context.Background()

	texts := []string{"alpha", "beta"}
	_, err = cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	before := fake.batchCalls.Load()
	_, err = cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	assert.Equal(t, before, fake.batchCalls.Load())
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached, err := NewCachedEmbedder(newCountingEmbedder("m1"), 16)
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// =============================================================================
// Cache Key Tests
// =============================================================================

func TestCachedEmbedder_KeyIncludesModelName(t *testing.T) {
	c1, err := NewCachedEmbedder(newCountingEmbedder("model-a"), 16)
	require.NoError(t, err)
	c2, err := NewCachedEmbedder(newCountingEmbedder("model-b"), 16)
	require.NoError(t, err)

	assert.NotEqual(t, c1.cacheKey("same text"), c2.cacheKey("same text"))
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	fake := newCountingEmbedder("m1")
	cached, err := NewCachedEmbedder(fake, 16)
	require.NoError(t, err)

	assert.Equal(t, 32, cached.Dimensions())
	assert.Equal(t, "m1", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}

func TestCachedEmbedder_ClosePurges(t *testing.T) {
	cached, err := NewCachedEmbedder(newCountingEmbedder("m1"), 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.NoError(t, cached.Close())

	assert.Zero(t, cached.Stats().Size)
}

func TestCachedEmbedder_DefaultSizeWhenZero(t *testing.T) {
	cached, err := NewCachedEmbedder(newCountingEmbedder("m1"), 0)
	require.NoError(t, err)
	require.NotNil(t, cached)
}

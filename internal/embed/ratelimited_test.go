package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiting Tests
// =============================================================================

func TestNewRateLimitedEmbedder_ZeroRateReturnsInner(t *testing.T) {
	inner := NewStaticEmbedder()

	assert.Same(t, Embedder(inner), NewRateLimitedEmbedder(inner, 0))
	assert.Same(t, Embedder(inner), NewRateLimitedEmbedder(inner, -1))
}

func TestRateLimitedEmbedder_Delegates(t *testing.T) {
	inner := newCountingEmbedder("m1")
	limited := NewRateLimitedEmbedder(inner, 1000)
	ctx := context.Background()

	vec, err := limited.Embed(ctx, "text")
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	vecs, err := limited.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	assert.Equal(t, "m1", limited.ModelName())
	assert.Equal(t, 32, limited.Dimensions())
}

func TestRateLimitedEmbedder_PacesRequests(t *testing.T) {
	inner := newCountingEmbedder("m1")
	// 20 per second, burst 1: the first call is free, the next two wait
	// 50ms each.
	limited := &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(20), 1),
	}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Embed(ctx, "text")
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimitedEmbedder_CancelledContext(t *testing.T) {
	limited := &RateLimitedEmbedder{
		inner:   newCountingEmbedder("m1"),
		limiter: rate.NewLimiter(rate.Limit(0.001), 1),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The burst token covers the first call; the second would wait ~17
	// minutes and must give up with the context instead.
	_, err := limited.Embed(ctx, "text")
	require.NoError(t, err)

	_, err = limited.Embed(ctx, "text")
	assert.Error(t, err)
}

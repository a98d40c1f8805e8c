package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles requests to the inner embedder with a
// token bucket. One token covers one provider round trip, so a batch
// costs a single token regardless of size. The wrapper is shared safely
// across workers; rate.Limiter handles its own locking.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with a requests-per-second cap.
// A non-positive rate returns the inner embedder unwrapped.
func NewRateLimitedEmbedder(inner Embedder, perSec float64) Embedder {
	if perSec <= 0 {
		return inner
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Embed waits for a token, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then delegates.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the inner embedder's dimension.
func (r *RateLimitedEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the inner embedder's model identifier.
func (r *RateLimitedEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available delegates without consuming a token.
func (r *RateLimitedEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *RateLimitedEmbedder) Close() error {
	return r.inner.Close()
}

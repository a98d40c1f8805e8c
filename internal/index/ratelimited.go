package index

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles index operations with a token bucket. One
// token covers one Client call; reads and writes draw from the same
// bucket since most services meter them together.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with an operations-per-second cap.
// A non-positive rate returns the inner client unwrapped.
func NewRateLimitedClient(inner Client, perSec float64) Client {
	if perSec <= 0 {
		return inner
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// EnsureIndex delegates without consuming a token. It runs once per pass
// and may legitimately poll for minutes while an index is created.
func (r *RateLimitedClient) EnsureIndex(ctx context.Context, dimensions int) error {
	return r.inner.EnsureIndex(ctx, dimensions)
}

func (r *RateLimitedClient) Upsert(ctx context.Context, entries []Entry) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Upsert(ctx, entries)
}

func (r *RateLimitedClient) Delete(ctx context.Context, chunkIDs []string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.Delete(ctx, chunkIDs)
}

func (r *RateLimitedClient) DeleteByFilter(ctx context.Context, filter Filter) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.inner.DeleteByFilter(ctx, filter)
}

func (r *RateLimitedClient) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Query(ctx, vector, topK, filter)
}

func (r *RateLimitedClient) Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Fetch(ctx, chunkIDs)
}

func (r *RateLimitedClient) Stats(ctx context.Context) (Stats, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Stats{}, err
	}
	return r.inner.Stats(ctx)
}

func (r *RateLimitedClient) Name() string {
	return r.inner.Name()
}

func (r *RateLimitedClient) Close() error {
	return r.inner.Close()
}

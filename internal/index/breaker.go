package index

import (
	"context"
	"errors"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// BreakerClient wraps a Client with a circuit breaker so a dead index
// service fails passes fast instead of burning retry budget per document.
//
// Only infrastructure failures trip the breaker: timeouts, transient
// server errors, and unreachability. Rejected requests, quota, and
// missing-index responses pass through uncounted since the service is
// clearly alive when it sends them.
type BreakerClient struct {
	inner   Client
	breaker *syncerrors.CircuitBreaker
}

// NewBreakerClient wraps inner. Options tune the failure threshold and
// reset window.
func NewBreakerClient(inner Client, opts ...syncerrors.CircuitBreakerOption) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: syncerrors.NewCircuitBreaker("index."+inner.Name(), opts...),
	}
}

// State exposes the breaker state for status reporting.
func (b *BreakerClient) State() syncerrors.State {
	return b.breaker.State()
}

func (b *BreakerClient) EnsureIndex(ctx context.Context, dimensions int) error {
	return b.guard(ctx, func() error { return b.inner.EnsureIndex(ctx, dimensions) })
}

func (b *BreakerClient) Upsert(ctx context.Context, entries []Entry) error {
	return b.guard(ctx, func() error { return b.inner.Upsert(ctx, entries) })
}

func (b *BreakerClient) Delete(ctx context.Context, chunkIDs []string) error {
	return b.guard(ctx, func() error { return b.inner.Delete(ctx, chunkIDs) })
}

func (b *BreakerClient) DeleteByFilter(ctx context.Context, filter Filter) error {
	return b.guard(ctx, func() error { return b.inner.DeleteByFilter(ctx, filter) })
}

func (b *BreakerClient) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	var matches []Match
	err := b.guard(ctx, func() error {
		var innerErr error
		matches, innerErr = b.inner.Query(ctx, vector, topK, filter)
		return innerErr
	})
	return matches, err
}

func (b *BreakerClient) Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	var present map[string]bool
	err := b.guard(ctx, func() error {
		var innerErr error
		present, innerErr = b.inner.Fetch(ctx, chunkIDs)
		return innerErr
	})
	return present, err
}

func (b *BreakerClient) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := b.guard(ctx, func() error {
		var innerErr error
		stats, innerErr = b.inner.Stats(ctx)
		return innerErr
	})
	return stats, err
}

func (b *BreakerClient) Name() string {
	return b.inner.Name()
}

func (b *BreakerClient) Close() error {
	return b.inner.Close()
}

// guard runs fn through the breaker. An open circuit short-circuits with
// a fatal unavailable error so retry loops give up immediately.
func (b *BreakerClient) guard(ctx context.Context, fn func() error) error {
	if !b.breaker.Allow() {
		return syncerrors.New(syncerrors.ErrCodeIndexUnavailable,
			"index circuit breaker is open, service appears down", syncerrors.ErrCircuitOpen).
			WithSuggestion("wait for the index service to recover, then rerun the pass")
	}

	err := fn()
	if err == nil {
		b.breaker.RecordSuccess()
		return nil
	}
	if tripsBreaker(ctx, err) {
		b.breaker.RecordFailure()
	}
	return err
}

// tripsBreaker reports whether a failure indicates the service itself is
// unhealthy. Cancellation is the caller's doing, not the service's.
func tripsBreaker(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch syncerrors.GetCode(err) {
	case syncerrors.ErrCodeIndexTimeout,
		syncerrors.ErrCodeIndexTransient,
		syncerrors.ErrCodeIndexUnavailable:
		return true
	}
	return false
}

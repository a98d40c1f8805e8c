package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// DefaultCacheSize is the default LRU capacity for the embedding cache.
const DefaultCacheSize = 4096

// CachedEmbedder wraps another embedder with an LRU cache keyed by model
// and text. Repeated passes over a mostly-unchanged corpus hit the cache
// instead of the provider.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// NewCachedEmbedder wraps inner with an LRU cache of the given capacity.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, syncerrors.InternalError("failed to create embedding cache", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// cacheKey builds the lookup key. The model name is part of the key so a
// model switch never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns the cached vector or delegates to the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached texts from memory and sends only the misses
// to the inner embedder in a single batch. Output order matches input.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var missTexts []string
	var missPositions []int
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missTexts = append(missTexts, text)
		missPositions = append(missPositions, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		pos := missPositions[j]
		results[pos] = vec
		c.cache.Add(keys[pos], vec)
	}

	return results, nil
}

// Stats returns hit and miss counters.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.cache.Len(),
	}
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the inner embedder's model identifier.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Available delegates to the inner embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close purges the cache and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

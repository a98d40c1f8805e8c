// Package embed turns chunk text into dense vectors.
//
// Providers share the Embedder interface: Ollama for local models, OpenAI
// for hosted models, and a deterministic hash embedder for offline runs
// and tests. Wrappers add an LRU cache and a token-bucket rate limit
// without the providers knowing about either.
//
// Providers classify failures into coded errors and never retry
// internally. Callers decide the retry policy.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests
	DefaultTimeout = 60 * time.Second

	// DefaultConnectTimeout bounds the initial health check
	DefaultConnectTimeout = 5 * time.Second
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result is one-to-one with the input: vectors[i] embeds texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultStaticDimensions is the vector size for the hash embedder.
const DefaultStaticDimensions = 384

// staticStopWords are dropped before hashing. Keeping them would let
// high-frequency filler dominate the buckets.
var staticStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {},
}

// StaticEmbedder produces deterministic embeddings by hashing tokens into
// fixed buckets. No network, no model. The vectors carry enough lexical
// signal for tests and offline dry runs, nothing more.
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder creates a hash embedder with the default dimension.
func NewStaticEmbedder() *StaticEmbedder {
	return NewStaticEmbedderWithDimensions(DefaultStaticDimensions)
}

// NewStaticEmbedderWithDimensions creates a hash embedder with a custom
// dimension, for matching an index built by another provider.
func NewStaticEmbedderWithDimensions(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultStaticDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

// Embed generates a deterministic embedding for the text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.hashEmbed(text), nil
}

// EmbedBatch generates deterministic embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = e.hashEmbed(text)
	}
	return vecs, nil
}

// hashEmbed folds token and bigram hashes into dimension buckets and
// normalizes the result to unit length.
func (e *StaticEmbedder) hashEmbed(text string) []float32 {
	vec := make([]float32, e.dimensions)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		e.addFeature(vec, tok, 1.0)
	}
	// Bigrams give adjacent tokens a shared signal.
	for i := 0; i+1 < len(tokens); i++ {
		e.addFeature(vec, tokens[i]+" "+tokens[i+1], 0.5)
	}

	return normalizeVector(vec)
}

// addFeature hashes the feature into a bucket, with a second hash
// deciding the sign so buckets cancel rather than only accumulate.
func (e *StaticEmbedder) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dimensions))
	if (sum>>32)&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// tokenize lowercases, splits camelCase, and drops stop words and
// single-character fragments.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := strings.ToLower(current.String())
		current.Reset()
		if len(tok) < 2 {
			return
		}
		if _, stop := staticStopWords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// camelCase boundary starts a new token
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			current.WriteRune(r)
		default:
			flush()
		}
		prev = r
	}
	flush()

	return tokens
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available always reports true. The hash embedder has no dependencies.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (e *StaticEmbedder) Close() error {
	return nil
}

// Package index talks to the vector index that stores chunk embeddings.
//
// Two providers implement the Client interface: a Pinecone REST client
// for the hosted serverless index and an embedded HNSW index for fully
// local runs. The registry, not the index, is the source of truth for
// which chunk ids belong to a document; the index only has to honor
// upserts, deletes, and similarity queries faithfully.
package index

import (
	"context"
	"fmt"
)

// Metadata keys attached to every index entry.
const (
	MetaDocumentID     = "document_id"
	MetaSequenceIndex  = "sequence_index"
	MetaSourceURI      = "source_uri"
	MetaCollection     = "collection"
	MetaDocFingerprint = "doc_fingerprint"
	MetaText           = "text"
)

// MaxMetadataTextBytes caps the stored chunk text. The full text lives in
// the corpus; the index copy exists only to make query results readable.
const MaxMetadataTextBytes = 2000

// DefaultUpsertBatchSize is the number of vectors per upsert request.
const DefaultUpsertBatchSize = 100

// DefaultDeleteBatchSize is the number of ids per delete request.
const DefaultDeleteBatchSize = 1000

// Entry is one chunk vector as stored in the index.
type Entry struct {
	ChunkID  string
	Vector   []float32
	Metadata map[string]any
}

// Match is one query result.
type Match struct {
	ChunkID  string
	Score    float32
	Metadata map[string]any
}

// Stats describes the index contents.
type Stats struct {
	VectorCount int
	Dimensions  int
}

// Filter selects entries by exact metadata equality. A nil or empty
// filter matches everything.
type Filter map[string]string

// Client is the vector index contract the reindexer depends on.
type Client interface {
	// EnsureIndex creates the index if it does not exist and verifies
	// the dimension when it does.
	EnsureIndex(ctx context.Context, dimensions int) error

	// Upsert inserts or replaces entries by chunk id.
	Upsert(ctx context.Context, entries []Entry) error

	// Delete removes entries by chunk id. Missing ids are not an error.
	Delete(ctx context.Context, chunkIDs []string) error

	// DeleteByFilter removes every entry matching the metadata filter.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// Query returns the topK nearest entries to the vector, optionally
	// restricted by filter.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)

	// Fetch reports which of the given chunk ids exist in the index.
	Fetch(ctx context.Context, chunkIDs []string) (map[string]bool, error)

	// Stats returns the current index contents.
	Stats(ctx context.Context) (Stats, error)

	// Name identifies the provider for logs and status output.
	Name() string

	// Close flushes and releases resources.
	Close() error
}

// SanitizeMetadata coerces metadata into the value types a remote index
// accepts: strings, numbers, booleans, and lists of strings. The text
// value is clamped to MaxMetadataTextBytes. Nil values become empty
// strings rather than being dropped so a key's presence is stable.
func SanitizeMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}

	out := make(map[string]any, len(md))
	for k, v := range md {
		if v == nil {
			out[k] = ""
			continue
		}

		if k == MetaText {
			text := fmt.Sprintf("%v", v)
			out[k] = clampUTF8(text, MaxMetadataTextBytes)
			continue
		}

		switch val := v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = val
		case []string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// clampUTF8 truncates s to at most max bytes without splitting a rune.
func clampUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// Package corpus provides document sources for vecsync.
// A source enumerates logical documents from a backing store (local
// filesystem or S3), normalizes their content to plain text, and computes
// the content fingerprints that drive selective reindexing.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// Document is a logical document produced by a Source.
type Document struct {
	// ID is the stable document identifier, derived from the source path
	// (slash-separated, relative to the source root). It never changes for
	// a document that stays in place; its content fingerprint does.
	ID string

	// SourcePath is the absolute path or URI the content was read from.
	SourcePath string

	// Collection is a sanitized grouping label derived from the filename,
	// stored as index metadata for filtered deletes and queries.
	Collection string

	// Content is the normalized plain text (HTML is converted to markdown).
	Content string

	// Fingerprint is the hex SHA-256 of the raw source bytes. Computed
	// before any normalization so that change detection tracks the source
	// of truth, not the conversion pipeline.
	Fingerprint string

	Size    int64
	ModTime time.Time
}

// Result is returned from a Source enumeration channel.
type Result struct {
	Doc *Document
	Err error
}

// Source enumerates the documents of a corpus.
type Source interface {
	// Enumerate streams all documents in the corpus. The channel is closed
	// when enumeration completes or the context is cancelled.
	Enumerate(ctx context.Context) (<-chan Result, error)

	// Name identifies the source backend for logging.
	Name() string
}

// Fingerprint returns the hex-encoded SHA-256 digest of content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CollectionFromPath derives a collection name from a document path.
// The base name without extension is lowercased and non-alphanumeric runs
// collapse to single hyphens: "Employment_Act 2007.txt" -> "employment-act-2007".
func CollectionFromPath(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	var b strings.Builder
	lastHyphen := true // Suppress leading hyphen
	for _, r := range strings.ToLower(base) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

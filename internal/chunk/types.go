// Package chunk splits documents into retrievable units with deterministic
// identifiers. Chunking identical content always reproduces the identical
// sequence of chunks, which is what makes selective reindexing idempotent:
// unchanged chunks keep their ids and re-upserting them is a no-op.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk size defaults, tuned for prose documents.
const (
	DefaultMaxChars = 2000
	DefaultOverlap  = 200
)

// Boundary selects where the chunker is allowed to split.
type Boundary string

const (
	// BoundaryParagraph splits on blank lines, packing whole paragraphs.
	BoundaryParagraph Boundary = "paragraph"
	// BoundarySentence splits on sentence terminators.
	BoundarySentence Boundary = "sentence"
	// BoundaryFixed splits at exact character offsets.
	BoundaryFixed Boundary = "fixed"
)

// Chunk is a retrievable unit of document content.
type Chunk struct {
	// ID is SHA256(document_id + ":" + sequence_index + ":" + fingerprint)[:16].
	// The sequence index keeps repeated text at different positions distinct;
	// the fingerprint makes any content change produce a new id.
	ID string

	// DocumentID is the owning document's stable identifier.
	DocumentID string

	// SequenceIndex is the 0-based position within the document.
	SequenceIndex int

	// Text is the chunk content. Never empty.
	Text string

	// Fingerprint is SHA256(text)[:16].
	Fingerprint string
}

// TextFingerprint returns the truncated hex SHA-256 of chunk text.
func TextFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// ID derives the deterministic chunk identifier.
func ID(documentID string, sequenceIndex int, fingerprint string) string {
	input := fmt.Sprintf("%s:%d:%s", documentID, sequenceIndex, fingerprint)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// New builds a chunk with derived fingerprint and id.
func New(documentID string, sequenceIndex int, text string) *Chunk {
	fp := TextFingerprint(text)
	return &Chunk{
		ID:            ID(documentID, sequenceIndex, fp),
		DocumentID:    documentID,
		SequenceIndex: sequenceIndex,
		Text:          text,
		Fingerprint:   fp,
	}
}

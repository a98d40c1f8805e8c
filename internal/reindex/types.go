// Package reindex implements the selective reindexing pass.
//
// A pass enumerates the corpus, diffs content fingerprints against the
// document registry, and touches only what changed: removed documents
// lose their vectors first, then added and changed documents run the
// chunk, embed, upsert, delete-stale, commit pipeline on a bounded
// worker pool. Unchanged documents cost nothing. A document's registry
// record is committed only after its index writes succeed, so a failed
// document keeps its pre-pass state and is retried on the next pass.
package reindex

import (
	"time"
)

// Action describes what a pass did with one document.
type Action string

const (
	// ActionAdd indexed a document the registry had never seen.
	ActionAdd Action = "add"
	// ActionUpdate reindexed a document whose fingerprint changed.
	ActionUpdate Action = "update"
	// ActionRemove deleted a document gone from the corpus.
	ActionRemove Action = "remove"
)

// DocumentOutcome records the result of processing one document.
// Unchanged documents do not produce outcomes; they are counted only.
type DocumentOutcome struct {
	DocumentID string
	Action     Action

	// ChunksWritten is the number of vectors upserted.
	ChunksWritten int

	// ChunksDeleted counts stale or removed vector ids deleted.
	ChunksDeleted int

	// Err is non-nil when the document failed. Its registry record is
	// then still at the pre-pass state.
	Err error

	Duration time.Duration
}

// Failed reports whether processing this document failed.
func (o DocumentOutcome) Failed() bool {
	return o.Err != nil
}

// Timings holds wall time per pass stage.
type Timings struct {
	Scan   time.Duration
	Diff   time.Duration
	Remove time.Duration
	Index  time.Duration
}

// PassSummary is the structured result of one reindex pass.
type PassSummary struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time

	// Document counts by diff category. Failed documents are counted in
	// Failed only, not in their diff category.
	Added     int
	Changed   int
	Removed   int
	Unchanged int
	Failed    int

	// ChunksWritten is the total number of vectors upserted.
	ChunksWritten int

	// ChunksDeleted is the total number of vector ids deleted.
	ChunksDeleted int

	// RemovalsDeferred is the number of removals held back because the
	// corpus scan reported read errors. A document that failed to read
	// must not be mistaken for a deleted one, so removals wait for a
	// clean scan.
	RemovalsDeferred int

	// Outcomes holds one entry per processed document (adds, updates,
	// removes, and failures), in completion order.
	Outcomes []DocumentOutcome

	Timings Timings

	// Interrupted is true when the pass stopped early on cancellation.
	// Documents processed before the stop keep their commits.
	Interrupted bool
}

// Duration returns the total pass wall time.
func (s *PassSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Total returns the number of documents the pass considered.
func (s *PassSummary) Total() int {
	return s.Added + s.Changed + s.Removed + s.Unchanged + s.Failed + s.RemovalsDeferred
}

// FailedDocumentIDs returns the ids of documents that failed, in
// completion order.
func (s *PassSummary) FailedDocumentIDs() []string {
	var ids []string
	for _, o := range s.Outcomes {
		if o.Failed() {
			ids = append(ids, o.DocumentID)
		}
	}
	return ids
}

// Package registry tracks what has been indexed. It is the source of
// truth the selective pass diffs against: a document whose fingerprint
// matches its record costs nothing, and a record's chunk id set always
// mirrors what the index holds for that document after a successful
// commit.
package registry

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// RegistryRecord is the durable state for one indexed document.
type RegistryRecord struct {
	DocumentID    string    `json:"document_id"`
	Fingerprint   string    `json:"fingerprint"`
	ChunkIDs      []string  `json:"chunk_ids"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

// DiffResult partitions the current corpus against the registry. Each
// slice holds document ids, sorted for deterministic processing order.
type DiffResult struct {
	// Added documents have no record.
	Added []string
	// Changed documents have a record with a different fingerprint.
	Changed []string
	// Removed ids have a record but are absent from the corpus.
	Removed []string
	// Unchanged documents have a record with a matching fingerprint.
	Unchanged []string
}

// Total returns the number of documents the diff covers.
func (d DiffResult) Total() int {
	return len(d.Added) + len(d.Changed) + len(d.Removed) + len(d.Unchanged)
}

// Registry stores per-document indexing state.
//
// Commit and Delete are serialized per document id; operations on
// distinct ids may run concurrently.
type Registry interface {
	// Get returns the record for a document. The bool reports existence.
	Get(ctx context.Context, documentID string) (RegistryRecord, bool, error)

	// Diff partitions the current corpus (document id -> fingerprint)
	// against the stored records.
	Diff(ctx context.Context, current map[string]string) (DiffResult, error)

	// Commit atomically replaces the record for a document.
	Commit(ctx context.Context, documentID, fingerprint string, chunkIDs []string) error

	// Delete removes the record for a document. Missing records are not
	// an error.
	Delete(ctx context.Context, documentID string) error

	// List returns all records, sorted by document id.
	List(ctx context.Context) ([]RegistryRecord, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Clear removes every record, forcing the next pass to rebuild.
	Clear(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// PassRecord summarizes one completed reindexing pass.
type PassRecord struct {
	PassID       string    `json:"pass_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Added        int       `json:"added"`
	Changed      int       `json:"changed"`
	Removed      int       `json:"removed"`
	Unchanged    int       `json:"unchanged"`
	Failed       int       `json:"failed"`
	FailedDocIDs []string  `json:"failed_doc_ids,omitempty"`
}

// PassHistory records completed passes for status output. All bundled
// backends implement it alongside Registry.
type PassHistory interface {
	// AppendPass stores a completed pass summary.
	AppendPass(ctx context.Context, pass PassRecord) error

	// RecentPasses returns up to limit passes, newest first.
	RecentPasses(ctx context.Context, limit int) ([]PassRecord, error)
}

// computeDiff partitions current documents against stored records. The
// semantics are shared by every backend; a backend only has to supply
// its records.
func computeDiff(records []RegistryRecord, current map[string]string) DiffResult {
	var diff DiffResult

	known := make(map[string]string, len(records))
	for _, rec := range records {
		known[rec.DocumentID] = rec.Fingerprint
	}

	for id, fingerprint := range current {
		stored, exists := known[id]
		switch {
		case !exists:
			diff.Added = append(diff.Added, id)
		case stored == fingerprint:
			diff.Unchanged = append(diff.Unchanged, id)
		default:
			diff.Changed = append(diff.Changed, id)
		}
	}

	for id := range known {
		if _, inCorpus := current[id]; !inCorpus {
			diff.Removed = append(diff.Removed, id)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Changed)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Unchanged)
	return diff
}

// stripeCount is the number of per-document lock stripes. Power of two
// so the hash can mask instead of mod.
const stripeCount = 64

// stripedMutex serializes operations per document id without one lock
// per document. Two ids may share a stripe; that only costs contention,
// never correctness.
type stripedMutex struct {
	stripes [stripeCount]sync.Mutex
}

func (s *stripedMutex) lock(documentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(documentID))
	m := &s.stripes[h.Sum32()&(stripeCount-1)]
	m.Lock()
	return m
}

// copyStrings returns a defensive copy so callers cannot mutate stored
// state through a shared slice.
func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

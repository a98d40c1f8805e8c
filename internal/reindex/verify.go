package reindex

import (
	"context"
	"log/slog"
	"time"

	"github.com/lexhaven/vecsync/internal/index"
	"github.com/lexhaven/vecsync/internal/registry"
)

// DocumentDrift is a document whose registry record promises chunk ids
// the index no longer holds.
type DocumentDrift struct {
	DocumentID string
	// Missing lists the recorded chunk ids absent from the index.
	Missing []string
}

// VerifyReport contains the outcome of a drift audit.
type VerifyReport struct {
	// Documents is the number of registry records audited.
	Documents int
	// Chunks is the number of recorded chunk ids checked.
	Chunks int
	// Drifted lists documents with missing vectors, sorted by id.
	Drifted []DocumentDrift
	// OrphanEstimate approximates vectors in the index that no record
	// claims. It compares the index vector count against the registry,
	// so it is only meaningful when the index is not shared.
	OrphanEstimate int
	// Duration is how long the audit took.
	Duration time.Duration
}

// Clean reports whether the audit found nothing to fix.
func (r *VerifyReport) Clean() bool {
	return len(r.Drifted) == 0 && r.OrphanEstimate == 0
}

// MissingChunks returns the total number of missing vectors.
func (r *VerifyReport) MissingChunks() int {
	n := 0
	for _, d := range r.Drifted {
		n += len(d.Missing)
	}
	return n
}

// Verifier audits registry records against the live index. The registry
// is the source of truth for which chunk ids a document owns; the audit
// checks the index still honors those claims.
type Verifier struct {
	registry registry.Registry
	index    index.Client
}

// NewVerifier creates a verifier over the given registry and index.
func NewVerifier(reg registry.Registry, idx index.Client) *Verifier {
	return &Verifier{registry: reg, index: idx}
}

// Verify fetches every recorded chunk id from the index and reports the
// ones that are gone. It reads only; Repair schedules the fixes.
func (v *Verifier) Verify(ctx context.Context) (*VerifyReport, error) {
	start := time.Now()

	records, err := v.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	var allIDs []string
	for _, rec := range records {
		allIDs = append(allIDs, rec.ChunkIDs...)
	}

	present := map[string]bool{}
	if len(allIDs) > 0 {
		present, err = v.index.Fetch(ctx, allIDs)
		if err != nil {
			return nil, err
		}
	}

	report := &VerifyReport{
		Documents: len(records),
		Chunks:    len(allIDs),
	}
	for _, rec := range records {
		var missing []string
		for _, id := range rec.ChunkIDs {
			if !present[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			report.Drifted = append(report.Drifted, DocumentDrift{
				DocumentID: rec.DocumentID,
				Missing:    missing,
			})
		}
	}

	if stats, err := v.index.Stats(ctx); err == nil {
		tracked := len(allIDs) - report.MissingChunks()
		if orphans := stats.VectorCount - tracked; orphans > 0 {
			report.OrphanEstimate = orphans
		}
	} else {
		slog.Warn("index stats unavailable for drift audit", slog.String("error", err.Error()))
	}

	report.Duration = time.Since(start)

	slog.Info("verify_complete",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("drifted_documents", len(report.Drifted)),
		slog.Int("missing_chunks", report.MissingChunks()),
		slog.Int("orphan_estimate", report.OrphanEstimate),
		slog.String("duration", report.Duration.String()))
	return report, nil
}

// Repair invalidates the fingerprint of every drifted document so the
// next pass reprocesses exactly those documents: chunk ids are content
// derived, so re-embedding unchanged content restores the missing
// vectors and deletes nothing that is still valid. A drifted document
// whose record has vanished since the audit gets its remaining vectors
// swept instead, since nothing claims them anymore. Returns the number
// of documents invalidated.
func (v *Verifier) Repair(ctx context.Context, report *VerifyReport) (int, error) {
	invalidated := 0
	for _, drift := range report.Drifted {
		rec, exists, err := v.registry.Get(ctx, drift.DocumentID)
		if err != nil {
			return invalidated, err
		}
		if !exists {
			if err := v.index.DeleteByFilter(ctx, index.Filter{index.MetaDocumentID: drift.DocumentID}); err != nil {
				slog.Warn("orphan_sweep_failed",
					slog.String("document", drift.DocumentID),
					slog.String("error", err.Error()))
			}
			continue
		}

		if err := v.registry.Commit(ctx, drift.DocumentID, "", rec.ChunkIDs); err != nil {
			return invalidated, err
		}
		invalidated++

		slog.Info("document_invalidated_for_repair",
			slog.String("document", drift.DocumentID),
			slog.Int("missing_chunks", len(drift.Missing)))
	}
	return invalidated, nil
}

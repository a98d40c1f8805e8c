package reindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhaven/vecsync/internal/index"
)

func TestVerifier_CleanIndexReportsNoDrift(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	report, err := NewVerifier(rig.reg, rig.idx).Verify(ctx)
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, rig.idx.count(), report.Chunks)
	assert.Empty(t, report.Drifted)
	assert.Zero(t, report.OrphanEstimate)
	assert.Zero(t, report.MissingChunks())
}

func TestVerifier_DetectsMissingVectors(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	lease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	lost := lease.ChunkIDs[0]
	rig.idx.drop(lost)

	report, err := NewVerifier(rig.reg, rig.idx).Verify(ctx)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	require.Len(t, report.Drifted, 1)
	assert.Equal(t, "lease.md", report.Drifted[0].DocumentID)
	assert.Equal(t, []string{lost}, report.Drifted[0].Missing)
	assert.Equal(t, 1, report.MissingChunks())
}

func TestVerifier_RepairThenPassRestoresMissingVectors(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText), testDoc("notice.md", noticeText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	lease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	lost := lease.ChunkIDs[1]
	rig.idx.drop(lost)

	v := NewVerifier(rig.reg, rig.idx)
	report, err := v.Verify(ctx)
	require.NoError(t, err)

	invalidated, err := v.Repair(ctx, report)
	require.NoError(t, err)
	assert.Equal(t, 1, invalidated)

	// Repair only marks: the fingerprint is blanked, the index is not
	// touched, and untouched documents keep their fingerprints.
	marked, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.Empty(t, marked.Fingerprint)
	assert.Equal(t, lease.ChunkIDs, marked.ChunkIDs)
	assert.False(t, rig.idx.has(lost))

	notice, _, err := rig.reg.Get(ctx, "notice.md")
	require.NoError(t, err)
	assert.NotEmpty(t, notice.Fingerprint)

	// The next pass reprocesses exactly the marked document. Content is
	// unchanged, so chunk ids reproduce and the lost vector returns.
	summary, err := rig.r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.True(t, rig.idx.has(lost))

	restored, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	assert.Equal(t, lease.Fingerprint, restored.Fingerprint)
	assert.Equal(t, lease.ChunkIDs, restored.ChunkIDs)

	report, err = v.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestVerifier_CountsOrphanedVectors(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	// A vector no registry record claims, left by some earlier crash.
	require.NoError(t, rig.idx.Upsert(ctx, []index.Entry{{
		ChunkID: "orphan:0",
		Vector:  []float32{1, 0, 0, 0, 0, 0, 0, 0},
		Metadata: map[string]any{
			index.MetaDocumentID: "ghost.md",
		},
	}}))

	report, err := NewVerifier(rig.reg, rig.idx).Verify(ctx)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Empty(t, report.Drifted)
	assert.Equal(t, 1, report.OrphanEstimate)
}

func TestVerifier_EmptyRegistryIsClean(t *testing.T) {
	rig := newRig(t)

	report, err := NewVerifier(rig.reg, rig.idx).Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Zero(t, report.Documents)
	assert.Zero(t, report.Chunks)
}

func TestVerifier_RepairSweepsVanishedRecords(t *testing.T) {
	rig := newRig(t, testDoc("lease.md", leaseText))
	ctx := context.Background()

	_, err := rig.r.Run(ctx)
	require.NoError(t, err)

	lease, _, err := rig.reg.Get(ctx, "lease.md")
	require.NoError(t, err)
	require.Greater(t, len(lease.ChunkIDs), 1)
	rig.idx.drop(lease.ChunkIDs[0])

	v := NewVerifier(rig.reg, rig.idx)
	report, err := v.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifted, 1)

	// The record disappears between audit and repair.
	require.NoError(t, rig.reg.Delete(ctx, "lease.md"))

	invalidated, err := v.Repair(ctx, report)
	require.NoError(t, err)
	assert.Zero(t, invalidated)

	// Nothing claims the document anymore, so its surviving vectors are
	// swept rather than left orphaned.
	for _, id := range lease.ChunkIDs[1:] {
		assert.False(t, rig.idx.has(id), "Vector %s should have been swept", id)
	}
}

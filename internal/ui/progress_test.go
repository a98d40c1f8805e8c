package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressTracker(t *testing.T) {
	// When: creating a new tracker
	tracker := NewProgressTracker()

	// Then: starts at StageScanning with zero progress
	stats := tracker.Stats()
	assert.Equal(t, StageScanning, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 0, stats.Total)
}

func TestProgressTracker_SetStage(t *testing.T) {
	// Given: a new tracker
	tracker := NewProgressTracker()

	// When: setting stage with total
	tracker.SetStage(StageIndexing, 100)

	// Then: stage and total are updated
	stats := tracker.Stats()
	assert.Equal(t, StageIndexing, stats.Stage)
	assert.Equal(t, 100, stats.Total)
	assert.Equal(t, 0, stats.Current) // Current resets on stage change
}

func TestProgressTracker_Update(t *testing.T) {
	// Given: a tracker in indexing stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 100)

	// When: updating progress
	tracker.Update(50, "docs/contracts/nda.md")

	// Then: current and document are updated
	stats := tracker.Stats()
	assert.Equal(t, 50, stats.Current)
	assert.Equal(t, "docs/contracts/nda.md", stats.CurrentDoc)
}

func TestProgressTracker_Progress_Percentage(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		expected float64
	}{
		{"zero total", 0, 0, 0.0},
		{"zero current", 0, 100, 0.0},
		{"half done", 50, 100, 0.5},
		{"complete", 100, 100, 1.0},
		{"over 100%", 150, 100, 1.0}, // Capped at 1.0
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewProgressTracker()
			tracker.SetStage(StageScanning, tt.total)
			tracker.Update(tt.current, "")

			assert.InDelta(t, tt.expected, tracker.Progress(), 0.01)
		})
	}
}

func TestProgressTracker_AddError(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: adding an error
	tracker.AddError(ErrorEvent{
		Document: "docs/broken.md",
		Err:      assert.AnError,
		IsWarn:   false,
	})

	// Then: error count increases
	stats := tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 0, stats.WarnCount)

	// When: adding a warning
	tracker.AddError(ErrorEvent{
		Document: "docs/warning.md",
		Err:      assert.AnError,
		IsWarn:   true,
	})

	// Then: warning count increases
	stats = tracker.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
}

func TestProgressTracker_ETA_ZeroProgress(t *testing.T) {
	// Given: a tracker with no progress
	tracker := NewProgressTracker()
	tracker.SetStage(StageScanning, 100)

	// When: calculating ETA
	eta := tracker.ETA()

	// Then: returns 0 (unknown)
	assert.Equal(t, time.Duration(0), eta)
}

func TestProgressTracker_ETA_PartialProgress(t *testing.T) {
	// Given: a tracker with some progress
	tracker := NewProgressTracker()
	tracker.SetStage(StageScanning, 100)

	// Simulate some time passing
	time.Sleep(50 * time.Millisecond)

	// Update to 50%
	tracker.Update(50, "docs/a.md")

	// When: calculating ETA
	eta := tracker.ETA()

	// Then: ETA should be roughly equal to elapsed time (50% done in ~50ms, so ~50ms remaining)
	// Allow some variance for test execution time
	assert.True(t, eta >= 0, "ETA should be non-negative")
	assert.True(t, eta < 500*time.Millisecond, "ETA should be reasonable")
}

func TestProgressTracker_ThreadSafety(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 1000)

	// When: concurrent updates
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Update(n, "docs/a.md")
			tracker.Progress()
			tracker.Stats()
			tracker.RenderSparkline(20)
		}(i)
	}
	wg.Wait()

	// Then: no panic, data is consistent
	stats := tracker.Stats()
	require.NotNil(t, stats)
}

func TestProgressTracker_StageTransition(t *testing.T) {
	// Given: a tracker progressing through a pass
	tracker := NewProgressTracker()

	// Stage 1: Scanning
	tracker.SetStage(StageScanning, 120)
	tracker.Update(120, "docs/last.md")
	assert.Equal(t, StageScanning, tracker.Stats().Stage)

	// Stage 2: Diffing
	tracker.SetStage(StageDiffing, 0)
	assert.Equal(t, StageDiffing, tracker.Stats().Stage)
	assert.Equal(t, 0, tracker.Stats().Current) // Reset on stage change

	// Stage 3: Removing
	tracker.SetStage(StageRemoving, 3)
	tracker.Update(3, "")
	assert.Equal(t, StageRemoving, tracker.Stats().Stage)
	assert.Equal(t, 3, tracker.Stats().Total)

	// Stage 4: Indexing
	tracker.SetStage(StageIndexing, 5)
	tracker.Update(5, "")
	assert.Equal(t, StageIndexing, tracker.Stats().Stage)

	// Complete
	tracker.SetStage(StageComplete, 0)
	assert.Equal(t, StageComplete, tracker.Stats().Stage)
}

func TestProgressTracker_ElapsedTime(t *testing.T) {
	// Given: a tracker
	tracker := NewProgressTracker()

	// When: some time passes
	time.Sleep(10 * time.Millisecond)

	// Then: elapsed time is tracked
	elapsed := tracker.Elapsed()
	assert.True(t, elapsed >= 10*time.Millisecond)
}

func TestProgressStats_Fields(t *testing.T) {
	// Given: a configured tracker
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 200)
	tracker.Update(100, "docs/current.md")
	tracker.AddError(ErrorEvent{Document: "docs/err.md", Err: assert.AnError, IsWarn: false})
	tracker.AddError(ErrorEvent{Document: "docs/warn.md", Err: assert.AnError, IsWarn: true})

	// When: getting stats
	stats := tracker.Stats()

	// Then: all fields are populated
	assert.Equal(t, StageIndexing, stats.Stage)
	assert.Equal(t, 100, stats.Current)
	assert.Equal(t, 200, stats.Total)
	assert.InDelta(t, 0.5, stats.Progress, 0.01)
	assert.Equal(t, "docs/current.md", stats.CurrentDoc)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
}

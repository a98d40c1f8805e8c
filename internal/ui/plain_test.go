package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating progress
	r.UpdateProgress(ProgressEvent{
		Stage:      StageScanning,
		Current:    50,
		Total:      100,
		CurrentDoc: "docs/contracts/nda.md",
	})

	// Then: output is correctly formatted
	output := buf.String()
	assert.Contains(t, output, "[SCAN]")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "docs/contracts/nda.md")
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering progress through all stages
	stages := []Stage{StageScanning, StageDiffing, StageRemoving, StageIndexing, StageComplete}
	for _, stage := range stages {
		r.UpdateProgress(ProgressEvent{
			Stage:   stage,
			Current: 50,
			Total:   100,
			Message: "Processing...",
		})
	}

	// Then: output contains no ANSI escape codes
	output := buf.String()
	assert.NotContains(t, output, "\x1b[", "should not contain ANSI escape codes")
	assert.NotContains(t, output, "\033[", "should not contain ANSI escape codes")
}

func TestPlainRenderer_UpdateProgress_WithMessage(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with message instead of document
	r.UpdateProgress(ProgressEvent{
		Stage:   StageDiffing,
		Current: 100,
		Total:   200,
		Message: "Comparing fingerprints...",
	})

	// Then: message is shown
	output := buf.String()
	assert.Contains(t, output, "[DIFF]")
	assert.Contains(t, output, "Comparing fingerprints...")
}

func TestPlainRenderer_UpdateProgress_ZeroTotal(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with zero total (unknown count)
	r.UpdateProgress(ProgressEvent{
		Stage:   StageScanning,
		Total:   0,
		Message: "Scanning corpus...",
	})

	// Then: shows message without count
	output := buf.String()
	assert.Contains(t, output, "[SCAN]")
	assert.Contains(t, output, "Scanning corpus...")
	assert.NotContains(t, output, "0/0")
}

func TestPlainRenderer_AddError_Error(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding an error
	r.AddError(ErrorEvent{
		Document: "docs/broken.md",
		Err:      errors.New("embedding dimension mismatch"),
		IsWarn:   false,
	})

	// Then: error is formatted correctly
	output := buf.String()
	assert.Contains(t, output, "ERROR:")
	assert.Contains(t, output, "docs/broken.md")
	assert.Contains(t, output, "embedding dimension mismatch")
}

func TestPlainRenderer_AddError_Warning(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding a warning
	r.AddError(ErrorEvent{
		Document: "docs/huge.md",
		Err:      errors.New("document exceeds size limit"),
		IsWarn:   true,
	})

	// Then: warning is formatted correctly
	output := buf.String()
	assert.Contains(t, output, "WARN:")
	assert.Contains(t, output, "docs/huge.md")
	assert.Contains(t, output, "document exceeds size limit")
}

func TestPlainRenderer_AddError_NoDocument(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding error without a document
	r.AddError(ErrorEvent{
		Err:    errors.New("connection failed"),
		IsWarn: false,
	})

	// Then: error shows without document prefix
	output := buf.String()
	assert.Contains(t, output, "ERROR:")
	assert.Contains(t, output, "connection failed")
}

func TestPlainRenderer_Complete_Basic(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing
	r.Complete(CompletionStats{
		Added:     3,
		Changed:   2,
		Removed:   1,
		Unchanged: 114,
		Chunks:    57,
		Duration:  5 * time.Second,
	})

	// Then: summary is shown
	output := buf.String()
	assert.Contains(t, output, "Pass complete:")
	assert.Contains(t, output, "3 added")
	assert.Contains(t, output, "2 changed")
	assert.Contains(t, output, "1 removed")
	assert.Contains(t, output, "114 unchanged")
	assert.Contains(t, output, "57")
	assert.Contains(t, output, "5s")
}

func TestPlainRenderer_Complete_WithFailures(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with failed documents
	r.Complete(CompletionStats{
		Added:     5,
		Changed:   0,
		Unchanged: 90,
		Failed:    2,
		Duration:  10 * time.Second,
		Errors:    2,
		Warnings:  1,
	})

	// Then: failure summary is included
	output := buf.String()
	assert.Contains(t, output, "2 failed")
	assert.Contains(t, output, "2 errors")
	assert.Contains(t, output, "1 warnings")
}

func TestPlainRenderer_Complete_StageBreakdown(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with stage timings
	r.Complete(CompletionStats{
		Added:    10,
		Chunks:   200,
		Duration: 30 * time.Second,
		Stages: StageTimings{
			Scan:   2 * time.Second,
			Diff:   100 * time.Millisecond,
			Remove: 1 * time.Second,
			Index:  25 * time.Second,
		},
		Embedder: EmbedderInfo{
			Backend:    "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
	})

	// Then: breakdown and embedder info are shown
	output := buf.String()
	assert.Contains(t, output, "Stage Breakdown:")
	assert.Contains(t, output, "Scan:")
	assert.Contains(t, output, "Diff:")
	assert.Contains(t, output, "Remove:")
	assert.Contains(t, output, "Index:")
	assert.Contains(t, output, "chunks @")
	assert.Contains(t, output, "openai")
	assert.Contains(t, output, "text-embedding-3-small")
	assert.Contains(t, output, "1536 dims")
}

func TestPlainRenderer_Complete_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing
	r.Complete(CompletionStats{
		Added:    100,
		Chunks:   500,
		Duration: 5 * time.Second,
		Errors:   2,
		Warnings: 1,
	})

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: starting and stopping
	ctx := context.Background()
	err := r.Start(ctx)
	require.NoError(t, err)

	err = r.Stop()
	require.NoError(t, err)
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			r.UpdateProgress(ProgressEvent{
				Stage:   StageIndexing,
				Current: n,
				Total:   100,
			})
			r.AddError(ErrorEvent{
				Document: "docs/test.md",
				Err:      errors.New("test"),
				IsWarn:   n%2 == 0,
			})
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Then: no panic, output is written
	output := buf.String()
	assert.NotEmpty(t, output)
}

func TestPlainRenderer_AllStages(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: going through all stages
	stages := []struct {
		stage Stage
		icon  string
	}{
		{StageScanning, "SCAN"},
		{StageDiffing, "DIFF"},
		{StageRemoving, "REMOVE"},
		{StageIndexing, "INDEX"},
	}

	for _, s := range stages {
		r.UpdateProgress(ProgressEvent{
			Stage:   s.stage,
			Current: 50,
			Total:   100,
		})
	}

	// Then: all stage icons appear
	output := buf.String()
	for _, s := range stages {
		assert.Contains(t, output, "["+s.icon+"]")
	}
}

func TestPlainRenderer_LongDocumentPath(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with a long document path
	longPath := strings.Repeat("very/", 20) + "deep/doc.md"
	r.UpdateProgress(ProgressEvent{
		Stage:      StageIndexing,
		Current:    1,
		Total:      10,
		CurrentDoc: longPath,
	})

	// Then: full path is shown (no truncation in plain mode)
	output := buf.String()
	assert.Contains(t, output, "doc.md")
}

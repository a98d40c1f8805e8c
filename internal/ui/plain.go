package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out: cfg.Output,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	// Format: [STAGE] current/total - message or document
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CurrentDoc != "" {
		msg = event.CurrentDoc
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.Document != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Document, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Pass complete: %d added, %d changed, %d removed, %d unchanged in %s",
		stats.Added, stats.Changed, stats.Removed, stats.Unchanged, stats.Duration.Round(100*millisecond))

	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Chunks > 0 {
		_, _ = fmt.Fprintf(r.out, "Chunks written: %d\n", stats.Chunks)
	}

	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, "Issues: %d errors, %d warnings\n", stats.Errors, stats.Warnings)
	}

	// Show detailed stage breakdown if available
	if stats.Stages.Scan > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:   %s (documents fingerprinted)\n", stats.Stages.Scan.Round(100*millisecond))
		_, _ = fmt.Fprintf(r.out, "  Diff:   %s (registry compared)\n", stats.Stages.Diff.Round(100*millisecond))
		if stats.Stages.Remove > 0 {
			_, _ = fmt.Fprintf(r.out, "  Remove: %s (%d documents dropped)\n",
				stats.Stages.Remove.Round(100*millisecond), stats.Removed)
		}
		if stats.Stages.Index > 0 && stats.Chunks > 0 {
			chunksPerSec := float64(stats.Chunks) / stats.Stages.Index.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Index:  %s (%d chunks @ %.1f/sec)\n",
				stats.Stages.Index.Round(100*millisecond), stats.Chunks, chunksPerSec)
		} else {
			_, _ = fmt.Fprintf(r.out, "  Index:  %s\n", stats.Stages.Index.Round(100*millisecond))
		}
	}

	// Show embedder backend info if available
	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

const millisecond = 1000000 // nanoseconds

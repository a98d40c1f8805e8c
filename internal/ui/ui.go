// Package ui renders reindex pass progress to the terminal.
//
// Interactive terminals get a rich bubbletea view with a progress bar
// and throughput sparkline; pipes and CI environments get plain line
// output. NewRenderer picks the right one automatically.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage identifies a phase of a reindex pass.
type Stage int

const (
	// StageScanning enumerates and fingerprints corpus documents.
	StageScanning Stage = iota
	// StageDiffing compares corpus fingerprints against the registry.
	StageDiffing
	// StageRemoving deletes vectors for documents gone from the corpus.
	StageRemoving
	// StageIndexing runs the chunk, embed, upsert pipeline per document.
	StageIndexing
	// StageComplete indicates the pass has finished.
	StageComplete
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageDiffing:
		return "Diffing"
	case StageRemoving:
		return "Removing"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns a short tag for plain-mode output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageDiffing:
		return "DIFF"
	case StageRemoving:
		return "REMOVE"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "????"
	}
}

// ProgressEvent reports progress within a stage.
type ProgressEvent struct {
	Stage      Stage
	Current    int
	Total      int
	CurrentDoc string // document being processed, if any
	Message    string // free-form status, shown when CurrentDoc is empty
}

// ErrorEvent reports a per-document failure or warning.
type ErrorEvent struct {
	Document string
	Err      error
	IsWarn   bool
}

// StageTimings holds elapsed wall time per pass stage.
type StageTimings struct {
	Scan   time.Duration
	Diff   time.Duration
	Remove time.Duration
	Index  time.Duration
}

// EmbedderInfo describes the embedding backend used for a pass.
type EmbedderInfo struct {
	Backend    string
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished pass.
type CompletionStats struct {
	Added     int
	Changed   int
	Removed   int
	Unchanged int
	Failed    int
	Chunks    int // chunks embedded and upserted
	Duration  time.Duration
	Errors    int
	Warnings  int
	Stages    StageTimings
	Embedder  EmbedderInfo
}

// Processed returns the number of documents that required index writes.
func (s CompletionStats) Processed() int {
	return s.Added + s.Changed + s.Removed
}

// Renderer receives progress events during a pass.
//
// Implementations must be safe for concurrent use: the indexing stage
// reports from multiple workers.
type Renderer interface {
	// Start begins rendering. Must be called before any events.
	Start(ctx context.Context) error

	// UpdateProgress reports stage progress.
	UpdateProgress(event ProgressEvent)

	// AddError records a per-document error or warning.
	AddError(event ErrorEvent)

	// Complete renders the final pass summary.
	Complete(stats CompletionStats)

	// Stop shuts the renderer down. Safe to call after Complete.
	Stop() error
}

// Config controls renderer selection and appearance.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	IndexName  string // shown in the TUI header
}

// ConfigOption customizes a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain line output even on a TTY.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables ANSI colors.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithIndexName sets the index name shown in the TUI header.
func WithIndexName(name string) ConfigOption {
	return func(c *Config) { c.IndexName = name }
}

// NewConfig builds a renderer config for the given output.
func NewConfig(out io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: out}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the best renderer for the environment: the TUI
// on interactive terminals, plain output for pipes, CI, or when the
// TUI cannot start.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether the NO_COLOR convention is in effect.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process appears to run under CI.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// Package watcher turns filesystem activity under the corpus root into
// reindex triggers. Raw fsnotify events arrive in bursts (editor saves,
// git checkouts, rsync runs); the watcher coalesces them over a settle
// window so a burst becomes one batch, and a batch becomes one pass.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Op classifies a filesystem change.
type Op int

const (
	// OpCreate is a new file or directory.
	OpCreate Op = iota
	// OpModify is a content change to an existing file.
	OpModify
	// OpDelete is a removed file or directory.
	OpDelete
	// OpRename is a moved entry; the event names the old path.
	OpRename
)

// String returns the op name for logs.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one settled filesystem change. Path is slash-separated and
// relative to the watch root, the same form corpus document ids use.
type Change struct {
	Path  string
	Op    Op
	IsDir bool
	At    time.Time
}

// Options configures watching behavior.
type Options struct {
	// Settle is how long the tree must stay quiet before pending
	// changes are emitted as a batch (default: 500ms).
	Settle time.Duration

	// BufferSize is the batch channel capacity (default: 64).
	BufferSize int

	// Exclude holds doublestar patterns matched against slash-relative
	// paths, the same pattern language the corpus source uses.
	Exclude []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Settle:     500 * time.Millisecond,
		BufferSize: 64,
	}
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Settle <= 0 {
		o.Settle = defaults.Settle
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	return o
}

// Watcher observes a directory tree and emits settled change batches.
type Watcher struct {
	opts      Options
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []Change
	errors    chan error
	stopCh    chan struct{}
	root      string

	mu      sync.RWMutex
	stopped bool
}

// New creates a watcher. Call Start to begin observing.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		opts:      opts,
		fs:        fsw,
		debouncer: NewDebouncer(opts.Settle),
		events:    make(chan []Change, opts.BufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches root recursively and blocks until the context is
// cancelled or Stop is called. Batches arrive on Events while it runs.
// Start is not safe to call twice.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("failed to watch %s: %w", absRoot, err)
	}

	go w.forward(ctx)

	slog.Info("watch_started",
		slog.String("root", absRoot),
		slog.Duration("settle", w.opts.Settle))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle converts one fsnotify event and feeds the debouncer.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	relSlash := filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.excluded(relSlash, isDir) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories need their own watch for events beneath them.
		if isDir {
			_ = w.fs.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod does not change content.
		return
	}

	w.debouncer.Add(Change{Path: relSlash, Op: op, IsDir: isDir, At: time.Now()})
}

// excluded reports whether a path is outside the watched corpus. The
// .git and .vecsync trees are always out: the registry and pass lock
// live under .vecsync, and watching them would trigger passes from the
// tool's own writes.
func (w *Watcher) excluded(relSlash string, isDir bool) bool {
	if relSlash == "." || relSlash == "" {
		return true
	}
	if relSlash == ".git" || strings.HasPrefix(relSlash, ".git/") {
		return true
	}
	if relSlash == ".vecsync" || strings.HasPrefix(relSlash, ".vecsync/") {
		return true
	}

	for _, pattern := range w.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return true
		}
		if isDir {
			trimmed := strings.TrimSuffix(pattern, "/**")
			if trimmed != pattern {
				if ok, _ := doublestar.Match(trimmed, relSlash); ok {
					return true
				}
			}
		}
	}
	return false
}

// addRecursive puts a watch on root and every directory under it.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		relSlash := filepath.ToSlash(rel)
		if relSlash == "." {
			return w.fs.Add(path)
		}
		if w.excluded(relSlash, true) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// forward moves settled batches from the debouncer to the public channel.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			w.emit(batch)
		}
	}
}

// emit hands a batch to the consumer without blocking the watch loop.
// A dropped batch is not lost work: the triggered pass diffs against
// the registry, not against these events.
func (w *Watcher) emit(batch []Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("changes", len(batch)))
	}
}

// emitError reports a non-fatal watch error.
func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop ends watching and closes the channels. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fs.Close()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns the settled batch channel. Closed on Stop.
func (w *Watcher) Events() <-chan []Change {
	return w.events
}

// Errors returns non-fatal watch errors. Closed on Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

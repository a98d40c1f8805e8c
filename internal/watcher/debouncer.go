package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid changes to the same path so one batch comes
// out after the settle window. Sequences merge down to what the
// consumer would observe on disk:
//   - create then modify is still create
//   - create then delete cancels out
//   - modify then delete is delete
//   - delete then create is modify
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingChange
	timer   *time.Timer
	out     chan []Change
	stopped bool
}

type pendingChange struct {
	change Change
	// firstOp is the first operation seen this window; it anchors the
	// coalescing rules across repeated merges.
	firstOp Op
}

// NewDebouncer creates a debouncer with the given settle window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		out:     make(chan []Change, 10),
	}
}

// Add records a change. Every add restarts the flush timer, so batches
// emit only after the tree has been quiet for a full window.
func (d *Debouncer) Add(change Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[change.Path]; ok {
		merged := coalesce(existing, change)
		if merged == nil {
			delete(d.pending, change.Path)
		} else {
			existing.change = *merged
		}
	} else {
		d.pending[change.Path] = &pendingChange{change: change, firstOp: change.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges the next change into a pending one. Nil means the
// pair cancelled out and the path needs no event at all.
func coalesce(existing *pendingChange, next Change) *Change {
	switch existing.firstOp {
	case OpCreate:
		switch next.Op {
		case OpModify:
			return &existing.change
		case OpDelete:
			return nil
		}
	case OpDelete:
		if next.Op == OpCreate {
			replaced := next
			replaced.Op = OpModify
			return &replaced
		}
	}
	return &next
}

// flush emits everything pending as one batch, sorted by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Change, 0, len(d.pending))
	for _, pc := range d.pending {
		batch = append(batch, pc.change)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]*pendingChange)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debounce_batch_dropped", slog.Int("changes", len(batch)))
	}
}

// Output returns the settled batch channel.
func (d *Debouncer) Output() <-chan []Change {
	return d.out
}

// Stop discards pending changes and closes the output. Safe to call
// twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}

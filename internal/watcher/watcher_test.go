package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs Start in the background and gives fsnotify a moment
// to arm the watches before the test mutates the tree.
func startWatcher(t *testing.T, w *Watcher, root string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, root) }()
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Log("watcher did not stop in time")
		}
	})
}

// waitForChange consumes batches until one mentions path.
func waitForChange(t *testing.T, w *Watcher, path string, timeout time.Duration) Change {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %s", path)
			}
			for _, c := range batch {
				if c.Path == path {
					return c
				}
			}
		case <-deadline:
			t.Fatalf("no change for %s within %s", path, timeout)
		}
	}
}

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{OpRename, "rename"},
		{Op(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{}.WithDefaults()
	assert.Equal(t, 500*time.Millisecond, got.Settle)
	assert.Equal(t, 64, got.BufferSize)

	custom := Options{
		Settle:     50 * time.Millisecond,
		BufferSize: 8,
		Exclude:    []string{"**/*.tmp"},
	}.WithDefaults()
	assert.Equal(t, 50*time.Millisecond, custom.Settle)
	assert.Equal(t, 8, custom.BufferSize)
	assert.Equal(t, []string{"**/*.tmp"}, custom.Exclude)
}

func TestWatcher_EmitsSettledCreate(t *testing.T) {
	root := t.TempDir()
	w, err := New(Options{Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "lease.md"), []byte("lease"), 0o644))

	change := waitForChange(t, w, "lease.md", 2*time.Second)
	assert.Equal(t, OpCreate, change.Op)
	assert.False(t, change.IsDir)
	assert.False(t, change.At.IsZero())
}

func TestWatcher_CoalescesWriteBurst(t *testing.T) {
	root := t.TempDir()
	w, err := New(Options{Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	path := filepath.Join(root, "notes.md")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("draft"), 0o644))
	}

	select {
	case batch := <-w.Events():
		require.Len(t, batch, 1)
		assert.Equal(t, "notes.md", batch[0].Path)
		assert.Equal(t, OpCreate, batch[0].Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch")
	}
}

func TestWatcher_EmitsDeleteForRemovedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w, err := New(Options{Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	require.NoError(t, os.Remove(path))

	change := waitForChange(t, w, "doomed.md", 2*time.Second)
	assert.Equal(t, OpDelete, change.Op)
}

func TestWatcher_ExcludedPathsNeverSurface(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".vecsync"), 0o755))

	w, err := New(Options{Settle: 50 * time.Millisecond, Exclude: []string{"**/*.tmp"}})
	require.NoError(t, err)
	startWatcher(t, w, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "junk.tmp"), []byte("j"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".vecsync", "registry.db"), []byte("r"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.md"), []byte("r"), 0o644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			for _, c := range batch {
				require.NotEqual(t, "junk.tmp", c.Path)
				require.NotContains(t, c.Path, ".vecsync")
				if c.Path == "real.md" {
					return
				}
			}
		case <-deadline:
			t.Fatal("never saw real.md")
		}
	}
}

func TestWatcher_NewSubdirectoryGetsWatched(t *testing.T) {
	root := t.TempDir()
	w, err := New(Options{Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	subdir := filepath.Join(root, "contracts")
	require.NoError(t, os.Mkdir(subdir, 0o755))

	dirChange := waitForChange(t, w, "contracts", 2*time.Second)
	assert.Equal(t, OpCreate, dirChange.Op)
	assert.True(t, dirChange.IsDir)

	// The directory's own watch is armed asynchronously.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(subdir, "lease.md"), []byte("l"), 0o644))

	fileChange := waitForChange(t, w, "contracts/lease.md", 2*time.Second)
	assert.Equal(t, OpCreate, fileChange.Op)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := New(Options{Settle: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestWatcher_ContextCancelStopsStart(t *testing.T) {
	root := t.TempDir()
	w, err := New(DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, root) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after cancel")
	}
}

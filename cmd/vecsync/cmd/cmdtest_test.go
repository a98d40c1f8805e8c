package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexhaven/vecsync/internal/config"
	"github.com/lexhaven/vecsync/internal/registry"
)

// testConfig is a fully offline configuration: static embeddings, an
// embedded local index, and a sqlite registry, all under the temp dir.
const testConfig = `version: 1
corpus:
  source: fs
  root: docs
embedding:
  provider: static
  dimensions: 64
index:
  provider: local
  name: test-index
registry:
  backend: sqlite
reindex:
  workers: 2
  watch_debounce: 100ms
logging:
  level: error
`

// emptyWorkspace switches into a fresh temp dir with no config.
func emptyWorkspace(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })

	return tmpDir
}

// setupWorkspace switches into a temp dir holding the offline test
// config and an empty docs/ corpus.
func setupWorkspace(t *testing.T) string {
	t.Helper()

	tmpDir := emptyWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "vecsync.yaml"), []byte(testConfig), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "docs"), 0o755))
	return tmpDir
}

// writeDoc writes a corpus document under docs/.
func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, "docs", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// runCommand executes the CLI with the given args, capturing output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// docCount opens the test registry and returns the tracked document
// count, -1 when the registry cannot be read (e.g. mid-write).
func docCount(t *testing.T) int {
	t.Helper()

	ctx := context.Background()
	reg, err := registry.NewFromConfig(ctx, config.NewConfig().Registry)
	if err != nil {
		return -1
	}
	defer func() { _ = reg.Close() }()

	count, err := reg.Count(ctx)
	if err != nil {
		return -1
	}
	return count
}

// waitForDocCount polls the registry until it reports want documents.
func waitForDocCount(t *testing.T, want int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if docCount(t) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("registry never reached %d documents (have %d)", want, docCount(t))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

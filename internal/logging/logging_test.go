package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestSetup_StderrOnly(t *testing.T) {
	// Given: config with no file path
	cfg := DefaultConfig()

	// When: setting up logging
	logger, cleanup, err := Setup(cfg)

	// Then: no file is created and the logger works
	require.NoError(t, err)
	require.NotNil(t, logger)
	cleanup()
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "vecsync.log")

	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Info("pass_complete", slog.Int("added", 3), slog.String("pass_id", "abc"))
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	// Each line is a JSON object
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "pass_complete", entry["msg"])
	assert.Equal(t, float64(3), entry["added"])
	assert.Equal(t, "abc", entry["pass_id"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "vecsync.log")

	cfg := Config{
		Level:         "warn",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "tiny.log")

	// 1 MB max; write just over it
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := strings.Repeat("x", 64*1024)
	for i := 0; i < 17; i++ { // 17 * 64 KiB > 1 MiB
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	// Then: a rotated file exists
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err, "expected rotated file tiny.log.1")
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "rot.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := strings.Repeat("y", 256*1024)
	// Force several rotations
	for i := 0; i < 24; i++ {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(logPath + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2, "should keep at most maxFiles rotated files")
}

func TestDefaultLogPath_UnderLogDir(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultLogDir(), "vecsync.log"), DefaultLogPath())
	assert.Contains(t, DefaultLogDir(), ".vecsync")
}

package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.vecsync/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vecsync", "logs")
	}
	return filepath.Join(home, ".vecsync", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "vecsync.log")
}

// EnsureLogDir creates the default log directory if it does not exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}

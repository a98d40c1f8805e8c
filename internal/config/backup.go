package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files
	BackupSuffix = ".bak"
)

// BackupConfig creates a timestamped backup of the config file at path.
// Returns the backup file path on success.
// If the file does not exist, returns empty string and nil error.
func BackupConfig(path string) (string, error) {
	if !fileExists(path) {
		return "", nil // No config to backup
	}

	// Generate timestamped backup filename
	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, timestamp)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Clean up old backups (keep only MaxBackups). Best effort: the backup
	// itself already succeeded.
	_ = cleanupOldBackups(path)

	return backupPath, nil
}

// ListConfigBackups returns all backup files for the config at path,
// sorted by modification time (newest first).
func ListConfigBackups(path string) ([]string, error) {
	configDir := filepath.Dir(path)
	configBase := filepath.Base(path)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No config dir = no backups
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	prefix := configBase + BackupSuffix + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(configDir, entry.Name()))
		}
	}

	// Sort by modification time (newest first)
	sort.Slice(backups, func(i, j int) bool {
		infoI, _ := os.Stat(backups[i])
		infoJ, _ := os.Stat(backups[j])
		if infoI == nil || infoJ == nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return backups, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, keeping the newest.
func cleanupOldBackups(path string) error {
	backups, err := ListConfigBackups(path)
	if err != nil {
		return err
	}

	if len(backups) <= MaxBackups {
		return nil
	}

	for _, backup := range backups[MaxBackups:] {
		if err := os.Remove(backup); err != nil {
			// Best effort - continue removing others
			continue
		}
	}

	return nil
}

// Package appinfo centralizes the identifiers and well-known paths shared
// across every other package: the application name, the data directory
// under the user's home, and the canonical database location (spec §6.2).
package appinfo

import (
	"os"
	"path/filepath"
)

// Name is the application name used to derive the data directory
// ("~/.<app>/ai-memory") and the notifications sidecar
// ("~/.<app>-notifications.json").
const Name = "aimemory"

// DataDirName is the subdirectory under the data root that holds the
// database, logs, and settings.
const DataDirName = "ai-memory"

// DatabaseFileName is the canonical SQLite database file name.
const DatabaseFileName = "conversations.db"

// DataDir returns "~/.<app>/ai-memory", creating it if necessary.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "."+Name, DataDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// DatabasePath returns the canonical path to the conversations database.
func DatabasePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DatabaseFileName), nil
}

// LogsDir returns "~/.<app>/ai-memory/logs", creating it if necessary.
func LogsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	logs := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logs, 0o750); err != nil {
		return "", err
	}
	return logs, nil
}

// SettingsPath returns the path to the global engine settings file.
func SettingsPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// NotificationsPath returns "~/.<app>-notifications.json" (spec §6.2 — this
// one sidecar lives next to the home directory marker, not inside the data
// directory, matching the literal path the spec gives).
func NotificationsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+Name+"-notifications.json"), nil
}

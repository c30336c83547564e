// Package config loads the global engine settings file
// (~/.<app>/ai-memory/settings.json), merged with an optional
// settings.local.json override in the same directory. Per-repository
// settings (spec §3 "Repository Settings") live in the store instead,
// since they must be queryable and updatable over RPC.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aimemory/engine/internal/appinfo"
)

// DefaultThrottleSeconds is the shadow-commit throttle default (spec §4.6).
const DefaultThrottleSeconds = 2

// DefaultMaxFileSizeMB is the shadow-commit size gate default (spec §4.6).
const DefaultMaxFileSizeMB = 10

// DefaultShadowPrefix is the default shadow-branch prefix (spec §3).
const DefaultShadowPrefix = "shadow/"

// DefaultExcludeGlobs are the built-in exclusion patterns (spec §4.6).
var DefaultExcludeGlobs = []string{
	"node_modules/**", "dist/**", "build/**", "coverage/**", ".cache/**",
	"**/.git/**", "*.lock", ".env", ".env.*", "*.log", "*.tmp", "*.swp",
	".DS_Store",
}

// LocalSettingsFileName is the uncommitted override file name.
const LocalSettingsFileName = "settings.local.json"

// Settings is the global engine configuration.
type Settings struct {
	// TranscriptDir overrides the default transcript directory to watch.
	TranscriptDir string `json:"transcript_dir,omitempty"`

	// AutoDetect enables repository auto-detection at startup (spec §6.5).
	AutoDetect bool `json:"auto_detect"`

	// AutoDetectRoots overrides the fixed set of search roots for
	// auto-detection.
	AutoDetectRoots []string `json:"auto_detect_roots,omitempty"`

	// LogLevel controls verbosity, overridden by AIMEMORY_LOG_LEVEL.
	LogLevel string `json:"log_level,omitempty"`

	// DefaultThrottleSeconds and DefaultMaxFileSizeMB seed new
	// repositories' settings rows.
	DefaultThrottleSeconds int `json:"default_throttle_seconds,omitempty"`
	DefaultMaxFileSizeMB   int `json:"default_max_file_size_mb,omitempty"`
}

// Load reads the global settings file, then merges a local override if
// present. Returns defaults if neither file exists.
func Load() (*Settings, error) {
	path, err := appinfo.SettingsPath()
	if err != nil {
		return nil, err
	}

	settings, err := loadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localPath := filepath.Join(filepath.Dir(path), LocalSettingsFileName)
	localData, err := os.ReadFile(localPath) //nolint:gosec // path derived from appinfo.SettingsPath
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else if err := mergeJSON(settings, localData); err != nil {
		return nil, fmt.Errorf("merging local settings: %w", err)
	}

	applyDefaults(settings)
	return settings, nil
}

func loadFromFile(path string) (*Settings, error) {
	settings := &Settings{AutoDetect: true}

	data, err := os.ReadFile(path) //nolint:gosec // path is the canonical settings path
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(settings)
	return settings, nil
}

// mergeJSON overrides fields present in data onto settings. Presence, not
// zero-value, decides whether a field overrides — this mirrors the
// teacher's settings-merge semantics so a local override can explicitly
// set a field to its zero value.
func mergeJSON(settings *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if v, ok := raw["transcript_dir"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("parsing transcript_dir: %w", err)
		}
		settings.TranscriptDir = s
	}
	if v, ok := raw["auto_detect"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("parsing auto_detect: %w", err)
		}
		settings.AutoDetect = b
	}
	if v, ok := raw["auto_detect_roots"]; ok {
		var roots []string
		if err := json.Unmarshal(v, &roots); err != nil {
			return fmt.Errorf("parsing auto_detect_roots: %w", err)
		}
		settings.AutoDetectRoots = roots
	}
	if v, ok := raw["log_level"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("parsing log_level: %w", err)
		}
		if s != "" {
			settings.LogLevel = s
		}
	}
	if v, ok := raw["default_throttle_seconds"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("parsing default_throttle_seconds: %w", err)
		}
		settings.DefaultThrottleSeconds = n
	}
	if v, ok := raw["default_max_file_size_mb"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("parsing default_max_file_size_mb: %w", err)
		}
		settings.DefaultMaxFileSizeMB = n
	}

	return nil
}

func applyDefaults(s *Settings) {
	if s.DefaultThrottleSeconds == 0 {
		s.DefaultThrottleSeconds = DefaultThrottleSeconds
	}
	if s.DefaultMaxFileSizeMB == 0 {
		s.DefaultMaxFileSizeMB = DefaultMaxFileSizeMB
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s, err := Load()
	require.NoError(t, err)
	require.True(t, s.AutoDetect)
	require.Equal(t, DefaultThrottleSeconds, s.DefaultThrottleSeconds)
	require.Equal(t, DefaultMaxFileSizeMB, s.DefaultMaxFileSizeMB)
}

func TestLoadMergesLocalOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dataDir := filepath.Join(home, ".aimemory", "ai-memory")
	require.NoError(t, os.MkdirAll(dataDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "settings.json"),
		[]byte(`{"auto_detect": true, "log_level": "warn"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, LocalSettingsFileName),
		[]byte(`{"auto_detect": false}`), 0o600))

	s, err := Load()
	require.NoError(t, err)
	require.False(t, s.AutoDetect)
	require.Equal(t, "warn", s.LogLevel)
}

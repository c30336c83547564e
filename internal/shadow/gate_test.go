package shadow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/store"
)

func testSettings() store.RepositorySettings {
	return store.RepositorySettings{
		RepositoryRoot:  "/repo",
		Enabled:         true,
		ThrottleSeconds: 2,
		MaxFileSizeMB:   10,
		ShadowPrefix:    "shadow/",
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGateRejectsExcludedPath(t *testing.T) {
	g, err := NewGate(testSettings(), config.DefaultExcludeGlobs)
	require.NoError(t, err)

	path := writeTempFile(t, "hello")
	reason, ok := g.Check(Event{RelativePath: "node_modules/pkg/index.js", AbsolutePath: path, IsCreate: true}, time.Time{})
	require.False(t, ok)
	require.Equal(t, RejectExcluded, reason)
}

func TestGateRejectsThrottledFile(t *testing.T) {
	g, err := NewGate(testSettings(), nil)
	require.NoError(t, err)

	path := writeTempFile(t, "hello")
	reason, ok := g.Check(Event{RelativePath: "src/a.go", AbsolutePath: path}, time.Now())
	require.False(t, ok)
	require.Equal(t, RejectThrottled, reason)
}

func TestGateRejectsOversizeFile(t *testing.T) {
	settings := testSettings()
	settings.MaxFileSizeMB = 0
	g, err := NewGate(settings, nil)
	require.NoError(t, err)

	path := writeTempFile(t, "this file exceeds a zero byte ceiling")
	reason, ok := g.Check(Event{RelativePath: "src/a.go", AbsolutePath: path}, time.Time{})
	require.False(t, ok)
	require.Equal(t, RejectSizeExceeded, reason)
}

func TestGateRejectsSuspectedSecret(t *testing.T) {
	g, err := NewGate(testSettings(), nil)
	require.NoError(t, err)

	path := writeTempFile(t, "AWS_SECRET_ACCESS_KEY=wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY\n")
	reason, ok := g.Check(Event{RelativePath: "src/config.go", AbsolutePath: path}, time.Time{})
	require.False(t, ok)
	require.Equal(t, RejectSecretSuspected, reason)
}

func TestGateRejectsUntrackedNonCreateFile(t *testing.T) {
	g, err := NewGate(testSettings(), nil)
	require.NoError(t, err)

	path := writeTempFile(t, "plain content with nothing suspicious at all")
	reason, ok := g.Check(Event{
		RelativePath: "src/a.go",
		AbsolutePath: path,
		IsCreate:     false,
		IsTracked:    func(string) bool { return false },
	}, time.Time{})
	require.False(t, ok)
	require.Equal(t, RejectNotTracked, reason)
}

func TestGateAcceptsCleanTrackedFile(t *testing.T) {
	g, err := NewGate(testSettings(), nil)
	require.NoError(t, err)

	path := writeTempFile(t, "plain content with nothing suspicious at all")
	_, ok := g.Check(Event{
		RelativePath: "src/a.go",
		AbsolutePath: path,
		IsTracked:    func(string) bool { return true },
	}, time.Time{})
	require.True(t, ok)
}

func TestMatchGlobShapes(t *testing.T) {
	require.True(t, matchGlob("node_modules/**", "node_modules/pkg/index.js"))
	require.True(t, matchGlob("**/.git/**", "a/.git/HEAD"))
	require.True(t, matchGlob("*.lock", "yarn.lock"))
	require.False(t, matchGlob("*.lock", "package.json"))
}

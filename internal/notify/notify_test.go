package notify

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	s, err := New(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(Record{Timestamp: time.Now(), Type: "shadow-commit", Repository: "/r", File: "a.go"}))
	records, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "shadow-commit", records[0].Type)
}

func TestAppendCapsAtMaxEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	s, err := New(path)
	require.NoError(t, err)

	for i := 0; i < MaxEntries+5; i++ {
		require.NoError(t, s.Append(Record{Timestamp: time.Now(), Type: "shadow-commit", File: "a.go"}))
	}

	records, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, records, MaxEntries)
}

func TestRecentOnMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s, err := New(path)
	require.NoError(t, err)

	records, err := s.Recent()
	require.NoError(t, err)
	require.Empty(t, records)
}

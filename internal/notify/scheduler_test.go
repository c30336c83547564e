package notify

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerEveryCommitWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	sink, err := New(path)
	require.NoError(t, err)

	sched := NewScheduler(sink)
	defer sched.Stop()

	sched.Submit(PrefEveryCommit, Record{Timestamp: time.Now(), Type: "shadow-commit", Repository: "/r"})

	records, err := sink.Recent()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSchedulerDisabledDropsRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	sink, err := New(path)
	require.NoError(t, err)

	sched := NewScheduler(sink)
	defer sched.Stop()

	sched.Submit(PrefDisabled, Record{Timestamp: time.Now(), Type: "shadow-commit"})

	records, err := sink.Recent()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSchedulerBatchedFlushesOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	sink, err := New(path)
	require.NoError(t, err)

	sched := NewScheduler(sink)
	sched.Submit(PrefBatched, Record{Timestamp: time.Now(), Type: "shadow-commit", Repository: "/r"})
	sched.Submit(PrefHourly, Record{Timestamp: time.Now(), Type: "shadow-commit", Repository: "/r2"})

	// Not yet flushed: Stop() drains pending queues before returning.
	sched.Stop()

	records, err := sink.Recent()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSchedulerUnknownPreferenceWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	sink, err := New(path)
	require.NoError(t, err)

	sched := NewScheduler(sink)
	defer sched.Stop()

	sched.Submit("bogus", Record{Timestamp: time.Now(), Type: "shadow-commit"})

	records, err := sink.Recent()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

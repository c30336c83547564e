package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertConversationIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Conversation{
		SessionID:     "4a77fa00-...8",
		ProjectName:   "ketchup",
		ProjectPath:   "/home/me/ketchup",
		Title:         "tell me about ketchup",
		FirstSeenAt:   time.Now(),
		LastUpdatedAt: time.Now(),
		MessageCount:  5,
		SourcePath:    "/transcripts/ketchup/4a77fa00.jsonl",
	}
	messages := make([]Message, 5)
	for i := range messages {
		messages[i] = Message{Ordinal: i, Role: "user", Content: "hi", CreatedAt: time.Now()}
	}

	require.NoError(t, s.ReplaceMessages(ctx, c, messages))
	require.NoError(t, s.ReplaceMessages(ctx, c, messages))

	got, err := s.GetConversation(ctx, c.SessionID)
	require.NoError(t, err)
	require.Equal(t, c.SessionID, got.SessionID)

	page, err := s.ConversationMessages(ctx, c.SessionID, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 5, page.TotalMessages)
	require.Len(t, page.Messages, 5)
}

func TestSearchFindsIndexedContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Conversation{
		SessionID:     "4a77fa00-...8",
		ProjectName:   "ketchup",
		FirstSeenAt:   time.Now(),
		LastUpdatedAt: time.Now(),
		MessageCount:  1,
	}
	require.NoError(t, s.ReplaceMessages(ctx, c, []Message{
		{Ordinal: 0, Role: "user", Content: "tell me about project ketchup please", CreatedAt: time.Now()},
	}))

	hits, total, err := s.Search(ctx, "project ketchup", 5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, total, 1)
	require.NotEmpty(t, hits)
	require.Equal(t, c.SessionID, hits[0].SessionID)
	require.Contains(t, hits[0].Preview, "ketchup")
}

func TestSearchEmptyQueryReturnsEmptyNotError(t *testing.T) {
	s := openTestStore(t)
	hits, total, err := s.Search(context.Background(), "", 5)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, hits)
}

func TestPaginationClamp(t *testing.T) {
	require.Equal(t, DefaultPageSize, ClampPageSize(0))
	require.Equal(t, MaxPageSize, ClampPageSize(10000))
	require.Equal(t, 10, ClampPageSize(10))
}

func TestRestorePointUniquePerRepository(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rp := RestorePoint{RepositoryRoot: "/R", Label: "before-refactor", CommitHash: "deadbeef", CreatedAt: time.Now()}
	require.NoError(t, s.CreateRestorePoint(ctx, rp))
	err := s.CreateRestorePoint(ctx, rp)
	require.ErrorIs(t, err, ErrRestorePointExists)

	list, err := s.ListRestorePoints(ctx, "/R", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRecordShadowCommitWithCorrelation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceMessages(ctx, Conversation{
		SessionID:     "sess-1",
		FirstSeenAt:   time.Now(),
		LastUpdatedAt: time.Now(),
	}, nil))

	require.NoError(t, s.RecordShadowCommit(ctx, ShadowCommit{
		CommitHash:     "abc1234",
		ShadowBranch:   "shadow/main",
		OriginalBranch: "main",
		RepositoryRoot: "/R",
		ChangedFiles:   []string{"src/a.txt"},
		Message:        "Auto-save: a.txt - shadow/main",
		SessionID:      "sess-1",
		Confidence:     0.9,
		CreatedAt:      time.Now(),
	}))

	sessionID, confidence, ok, err := s.CorrelatedSession(ctx, "abc1234")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sess-1", sessionID)
	require.InDelta(t, 0.9, confidence, 0.001)

	commits, err := s.ShadowCommitsForRepository(ctx, "/R", 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, []string{"src/a.txt"}, commits[0].ChangedFiles)
}

func TestRepositorySettingsLazyCreateAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRepository(ctx, Repository{Root: "/R", CachedAt: time.Now()}))
	require.NoError(t, s.EnsureRepositorySettings(ctx, "/R", RepositorySettings{
		Enabled: true, NotificationPref: "every-commit", ThrottleSeconds: 2, MaxFileSizeMB: 10, ShadowPrefix: "shadow/",
	}))

	rs, err := s.GetRepositorySettings(ctx, "/R")
	require.NoError(t, err)
	require.NotNil(t, rs)
	require.True(t, rs.Enabled)

	rs.Enabled = false
	require.NoError(t, s.UpdateRepositorySettings(ctx, *rs))

	rs2, err := s.GetRepositorySettings(ctx, "/R")
	require.NoError(t, err)
	require.False(t, rs2.Enabled)

	enabled, err := s.ListEnabledRepositories(ctx)
	require.NoError(t, err)
	require.Empty(t, enabled)
}

func TestIntegrityCheckReportsOKOnFreshDatabase(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, IntegrityOK, s.LastIntegrityStatus())
}

package shadow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommitMessageHighConfidenceUsesCannedDescription(t *testing.T) {
	msg := commitMessage(CommitMessageInput{
		RelativePath: "src/a.go",
		ShadowBranch: "shadow/main",
		SessionID:    "sess-1",
		Confidence:   0.9,
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	require.Contains(t, msg, "Auto-save: a.go - shadow/main")
	require.Contains(t, msg, "File modified during an AI-assisted session")
	require.Contains(t, msg, "Session: sess-1")
	require.Contains(t, msg, "Confidence: 90%")
	require.Contains(t, msg, "Timestamp: 2026-01-02T03:04:05Z")
}

func TestCommitMessageLowConfidenceUsesDiffStat(t *testing.T) {
	msg := commitMessage(CommitMessageInput{
		RelativePath:  "src/a.go",
		ShadowBranch:  "shadow/main",
		Confidence:    0.1,
		BeforeContent: "one\ntwo\n",
		AfterContent:  "one\ntwo\nthree\n",
	})

	require.Contains(t, msg, "Auto-save: a.go - shadow/main")
	require.False(t, strings.Contains(msg, "Session:"))
	require.Contains(t, msg, "added")
}

func TestCommitMessageNoCorrelationOmitsTrailers(t *testing.T) {
	msg := commitMessage(CommitMessageInput{
		RelativePath: "a.go",
		ShadowBranch: "shadow/main",
	})
	require.False(t, strings.Contains(msg, "Session:"))
}

func TestDiffStatSummaryNoChange(t *testing.T) {
	require.Equal(t, "File changed (no line-level diff available)", diffStatSummary("same", "same"))
}

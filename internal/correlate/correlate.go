// Package correlate decides whether a file change was caused by an
// active AI session, and how confident that claim is (spec §4.7, C7).
// The time-windowed tool-use matching here is new — the teacher never
// needed it, since it is invoked as a git hook and always knows which
// session triggered a save — but the evidence shape (does a tool-use
// record in the window name this path) is grounded on
// agent/claudecode/transcript.go's ExtractModifiedFiles/toolInput.FilePath
// extraction, reused here via transcript.ExtractToolFilePaths.
package correlate

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/aimemory/engine/internal/store"
	"github.com/aimemory/engine/internal/transcript"
)

// recentWindowLines is the spec §4.7 "N ~= 200" tunable.
const recentWindowLines = 200

// minConfidence is the spec §4.7 cutoff: "a record is returned iff
// score >= 0.3".
const minConfidence = 0.3

// timeWindow is the spec §4.7 "within a 10-second window" bound.
const timeWindow = 10 * time.Second

// Result is the correlator's output contract (spec §4.7: "{session,
// confidence, description?}").
type Result struct {
	SessionID  string
	Confidence float64
}

// Correlator scores candidate sessions against a file change event using
// the most recent tool-use evidence in each session's transcript.
type Correlator struct {
	store *store.Store
}

// New returns a Correlator backed by store for session lookup by project
// path.
func New(s *store.Store) *Correlator {
	return &Correlator{store: s}
}

// Correlate answers "was repositoryRoot/relativePath's change at
// eventTime caused by an AI session" (spec §4.7 algorithm).
func (c *Correlator) Correlate(ctx context.Context, repositoryRoot, relativePath string, eventTime time.Time) (Result, bool, error) {
	conversations, err := c.store.ConversationsForProjectPath(ctx, repositoryRoot, 5)
	if err != nil {
		return Result{}, false, err
	}
	if len(conversations) == 0 {
		return Result{}, false, nil
	}

	var best Result
	found := false

	for _, conv := range conversations {
		events, err := readRecentToolUses(conv.SourcePath)
		if err != nil {
			continue // permanent-data: log and skip, never block the caller (spec §7)
		}

		score := scoreEvents(events, relativePath, eventTime)
		if score < minConfidence {
			continue
		}
		if !found || score > best.Confidence {
			best = Result{SessionID: conv.SessionID, Confidence: score}
			found = true
		}
	}

	return best, found, nil
}

func readRecentToolUses(sourcePath string) ([]transcript.ToolUseEvent, error) {
	if sourcePath == "" {
		return nil, nil
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return transcript.RecentToolUses(f, recentWindowLines)
}

// scoreEvents implements the spec §4.7 additive scoring, clamped to
// [0,1]:
//
//	+0.5 exact path match
//	+0.3 same basename
//	+0.2 event within a 10s window of a tool-use record
//	+0.1 any tool activity in the window (cwd match is implied by the
//	     caller having filtered conversations by project path already)
func scoreEvents(events []transcript.ToolUseEvent, relativePath string, eventTime time.Time) float64 {
	if len(events) == 0 {
		return 0
	}

	base := filepath.Base(relativePath)
	var score float64
	var anyActivity, exactPath, basenameMatch, withinWindow bool

	for _, ev := range events {
		anyActivity = true
		for _, f := range ev.Files {
			if f == relativePath {
				exactPath = true
			}
			if filepath.Base(f) == base {
				basenameMatch = true
			}
		}
		if !ev.Timestamp.IsZero() && absDuration(eventTime.Sub(ev.Timestamp)) <= timeWindow {
			withinWindow = true
		}
	}

	if exactPath {
		score += 0.5
	}
	if basenameMatch {
		score += 0.3
	}
	if withinWindow {
		score += 0.2
	}
	if anyActivity {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

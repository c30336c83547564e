package shadow

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// confidenceDescriptionThreshold is the spec §4.6 cutoff: at or above
// this confidence the message uses the canned description instead of a
// diff-stat summary.
const confidenceDescriptionThreshold = 0.8

// CommitMessageInput is everything commitMessage needs, kept separate
// from the correlate.Result/store types so this package doesn't import
// internal/correlate (avoiding an import cycle with C6 depending on C7
// directly at call sites instead).
type CommitMessageInput struct {
	RelativePath   string
	ShadowBranch   string
	SessionID      string // empty if no correlation
	Confidence     float64
	BeforeContent  string // empty if the file is new
	AfterContent   string
	Timestamp      time.Time
}

// commitMessage composes the spec §4.6 commit message format:
//
//	Auto-save: <basename> - <shadow-branch>
//	<blank>
//	<one-line description>
//	<optional trailers>
func commitMessage(in CommitMessageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-save: %s - %s\n\n", filepath.Base(in.RelativePath), in.ShadowBranch)
	b.WriteString(description(in))
	b.WriteString("\n")

	if in.SessionID != "" {
		fmt.Fprintf(&b, "\nSession: %s\n", in.SessionID)
		fmt.Fprintf(&b, "Confidence: %d%%\n", int(in.Confidence*100))
		fmt.Fprintf(&b, "Timestamp: %s\n", in.Timestamp.UTC().Format(time.RFC3339))
	}

	return b.String()
}

// description chooses the canned high-confidence line, or falls back to
// a diff-stat summary produced with go-diff (grounded on
// strategy/manual_commit_attribution.go's use of go-diff for line
// attribution, generalized here into a stat summary).
func description(in CommitMessageInput) string {
	if in.Confidence >= confidenceDescriptionThreshold {
		return "File modified during an AI-assisted session"
	}
	return diffStatSummary(in.BeforeContent, in.AfterContent)
}

func diffStatSummary(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)

	var added, removed int
	for _, d := range diffs {
		lines := strings.Count(d.Text, "\n") + 1
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += lines
		case diffmatchpatch.DiffDelete:
			removed += lines
		}
	}

	if added == 0 && removed == 0 {
		return "File changed (no line-level diff available)"
	}
	return fmt.Sprintf("%d line(s) added, %d line(s) removed", added, removed)
}

// Package shadow is the Shadow-Commit Engine (spec §4.6, C6): for each
// monitored repository, it produces an auto-committed audit trail on a
// parallel branch whenever tracked files change, without disturbing the
// user's working branch. Grounded on strategy/auto_commit.go
// (AutoCommitStrategy.SaveChanges, commitCodeToActive,
// commitMetadataToMetadataBranch, the stash/checkout dance) — the
// teacher commits application code to an "active" branch plus metadata
// to an entire/sessions branch; this engine collapses that into a
// single shadow branch {prefix}{original} per the store's Repository
// model, keeping the teacher's commitOrHead/branch-ensure-exists idiom
// and its GetRewindPoints/ListOrphanedItems shape for restore points
// (internal/restore) and orphan cleanup (orphan.go) respectively.
package shadow

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aimemory/engine/internal/redact"
	"github.com/aimemory/engine/internal/store"
)

// RejectReason classifies which gate stage rejected a file event
// (spec §4.6 "Gate (ordered)").
type RejectReason string

const (
	RejectExcluded       RejectReason = "excluded"
	RejectThrottled      RejectReason = "throttled"
	RejectSizeExceeded   RejectReason = "size-exceeded"
	RejectSecretSuspected RejectReason = "secret-suspected"
	RejectNotTracked     RejectReason = "not-tracked"
)

// secretScanWindow is the spec §4.6 gate-4 read size ("first 1 KiB").
const secretScanWindow = 1024

// Gate evaluates the five ordered spec §4.6 stages for one file event.
// It holds no per-repository mutable state itself; last-commit-time
// tracking belongs to the repoWorker (worker.go), matching the spec §5
// resource table's "Local to worker; no sharing" discipline.
type Gate struct {
	settings store.RepositorySettings
	excludes []string
}

// NewGate records the effective exclusion glob set (defaults plus
// per-repository additions) for the lifetime of a repoWorker.
func NewGate(settings store.RepositorySettings, defaultExcludes []string) (*Gate, error) {
	all := append(append([]string{}, defaultExcludes...), settings.ExcludedGlobs...)
	return &Gate{settings: settings, excludes: all}, nil
}

// Event is one candidate file change, relative to the repository root.
type Event struct {
	RelativePath string
	AbsolutePath string
	IsCreate     bool
	IsTracked    func(relativePath string) bool
}

// Check runs the ordered gate. lastCommit is the worker's last-commit-time
// for this specific file (zero value if none yet).
func (g *Gate) Check(ev Event, lastCommit time.Time) (RejectReason, bool) {
	if g.matchesExclude(ev.RelativePath) {
		return RejectExcluded, false
	}

	throttle := time.Duration(g.settings.ThrottleSeconds) * time.Second
	if !lastCommit.IsZero() && time.Since(lastCommit) < throttle {
		return RejectThrottled, false
	}

	if info, err := os.Stat(ev.AbsolutePath); err == nil {
		maxBytes := int64(g.settings.MaxFileSizeMB) * 1024 * 1024
		if info.Size() > maxBytes {
			return RejectSizeExceeded, false
		}
	}

	if looksLikeSecret(ev.AbsolutePath) {
		return RejectSecretSuspected, false
	}

	if ev.IsTracked != nil && !ev.IsTracked(ev.RelativePath) && !ev.IsCreate {
		return RejectNotTracked, false
	}

	return "", true
}

func (g *Gate) matchesExclude(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	base := filepath.Base(normalized)
	for _, pattern := range g.excludes {
		if matchGlob(pattern, normalized) || matchGlob(pattern, base) {
			return true
		}
	}
	return false
}

// matchGlob supports the small pattern vocabulary the exclude list
// actually uses (spec §4.6 default excludes): a "**/" prefix meaning
// "at any depth", a "/**" suffix meaning "this directory and everything
// under it", and plain path.Match wildcards otherwise. No pack example
// imports a glob library for this; the pattern set here is small and
// fixed enough that hand-rolling the three shapes is simpler than
// pulling in an external matcher for one feature.
func matchGlob(pattern, name string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/"):
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, name); ok {
			return true
		}
		return strings.Contains(name, "/"+strings.TrimSuffix(suffix, "/**"))
	case strings.HasSuffix(pattern, "/**"):
		dir := strings.TrimSuffix(pattern, "/**")
		return name == dir || strings.HasPrefix(name, dir+"/")
	default:
		ok, _ := filepath.Match(pattern, name)
		return ok
	}
}

// looksLikeSecret reads the first secretScanWindow bytes of path and
// applies the spec §4.6 gate-4 hybrid fast-string + regex + entropy
// check (internal/redact.LooksLikeSecret).
func looksLikeSecret(path string) bool {
	f, err := os.Open(path) //nolint:gosec // path comes from a watched repository working tree, not user input
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, secretScanWindow)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}
	return redact.LooksLikeSecret(bytes.TrimRight(buf[:n], "\x00"))
}

// Package paths resolves git repository roots and formats the commit
// trailers the shadow-commit engine (C6) writes and the correlator (C7)
// and restore points (C8) read back.
package paths

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// SessionTrailerKey tags a shadow commit with the conversation session
// that (probably) caused it.
const SessionTrailerKey = "Session"

// ConfidenceTrailerKey carries the correlator's confidence score.
const ConfidenceTrailerKey = "Confidence"

// TimestampTrailerKey carries the commit's ISO-8601 creation time.
const TimestampTrailerKey = "Timestamp"

var sessionTrailerRegex = regexp.MustCompile(SessionTrailerKey + `:\s*(\S+)`)
var confidenceTrailerRegex = regexp.MustCompile(ConfidenceTrailerKey + `:\s*(\S+)`)

// ParseSessionTrailer extracts the session ID from a shadow-commit message.
func ParseSessionTrailer(message string) (string, bool) {
	m := sessionTrailerRegex.FindStringSubmatch(message)
	if len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// ParseConfidenceTrailer extracts the confidence value from a shadow-commit message.
func ParseConfidenceTrailer(message string) (string, bool) {
	m := confidenceTrailerRegex.FindStringSubmatch(message)
	if len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// repoRootCache caches repository-root lookups per input directory, since
// `git rev-parse --show-toplevel` is relatively expensive. internal/repo
// layers its own 30s-TTL cache (spec §4.5) on top of this process-wide
// cache; this one exists purely to avoid re-spawning git for repeated
// calls from the same directory within a single resolution.
var (
	repoRootMu    sync.RWMutex
	repoRootCache = map[string]string{}
)

// RepoRoot returns the git repository root containing dir, by walking
// upward looking for a .git entry (handling the "gitdir: ..." indirection
// used by worktrees and submodules) and then confirming with the
// authoritative `git rev-parse --show-toplevel`.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	repoRootMu.RLock()
	if cached, ok := repoRootCache[dir]; ok {
		repoRootMu.RUnlock()
		return cached, nil
	}
	repoRootMu.RUnlock()

	if _, err := findDotGit(dir); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolve repository root: %w", err)
	}
	root := strings.TrimSpace(string(out))

	repoRootMu.Lock()
	repoRootCache[dir] = root
	repoRootMu.Unlock()

	return root, nil
}

// ClearRepoRootCache clears the cache. Used by tests.
func ClearRepoRootCache() {
	repoRootMu.Lock()
	repoRootCache = map[string]string{}
	repoRootMu.Unlock()
}

// findDotGit walks upward from dir looking for a .git file or directory,
// resolving the "gitdir: <path>" indirection used by worktrees/submodules.
func findDotGit(dir string) (string, error) {
	cur := dir
	for {
		candidate := filepath.Join(cur, ".git")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return candidate, nil
			}
			data, err := os.ReadFile(candidate) //nolint:gosec // candidate built from walked path
			if err != nil {
				return "", fmt.Errorf("reading .git indirection file: %w", err)
			}
			line := strings.TrimSpace(string(data))
			if gitdir, ok := strings.CutPrefix(line, "gitdir: "); ok {
				if !filepath.IsAbs(gitdir) {
					gitdir = filepath.Join(cur, gitdir)
				}
				return gitdir, nil
			}
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no .git entry found above %s", dir)
		}
		cur = parent
	}
}

// SubdirectoryOf returns the path of input relative to root ("." if equal).
func SubdirectoryOf(root, input string) (string, error) {
	rel, err := filepath.Rel(root, input)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

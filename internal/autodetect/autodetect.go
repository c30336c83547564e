// Package autodetect implements spec §6.5: at startup the engine may
// discover repositories by searching a small fixed set of typical
// developer roots (to a maximum depth of 3) and by enumerating the
// transcript directory's project subdirectories, adding any directory
// that contains a .git entry with default settings. Grounded on the
// teacher's setup.go interactive directory picker, generalized here from
// a user-driven huh.FilePicker selection to an unattended filesystem
// walk.
package autodetect

import (
	"os"
	"path/filepath"
	"strings"
)

// MaxDepth is the spec §6.5 search-depth bound.
const MaxDepth = 3

// DefaultRoots returns the typical developer roots under the user's home
// directory searched when no explicit roots are configured.
func DefaultRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	candidates := []string{"code", "src", "projects", "dev", "workspace", "repos"}
	var roots []string
	for _, c := range candidates {
		roots = append(roots, filepath.Join(home, c))
	}
	return roots
}

// Discover walks each root to at most MaxDepth and returns every
// directory containing a .git entry. A root that doesn't exist is
// silently skipped (best-effort, per spec §6.5).
func Discover(roots []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, root := range roots {
		walkForGitDirs(root, 0, seen, &out)
	}
	return out
}

// ProjectPaths returns the project subdirectories under a transcript
// directory (spec §6.5 "enumerating the transcript directory's project
// subdirectories"). Each entry's `cwd`-derived project path is not known
// here; the indexer/store supply the true project path once a session
// is parsed, so this returns the raw transcript-subdirectory names for
// the caller to correlate by name only as a hint.
func ProjectPaths(transcriptDir string) []string {
	entries, err := os.ReadDir(transcriptDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(transcriptDir, e.Name()))
		}
	}
	return out
}

func walkForGitDirs(dir string, depth int, seen map[string]bool, out *[]string) {
	if depth > MaxDepth {
		return
	}
	if seen[dir] {
		return
	}

	gitPath := filepath.Join(dir, ".git")
	if info, err := os.Stat(gitPath); err == nil {
		seen[dir] = true
		*out = append(*out, dir)
		_ = info
		return // a repository root isn't searched for nested repos beyond itself
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		walkForGitDirs(filepath.Join(dir, e.Name()), depth+1, seen, out)
	}
}

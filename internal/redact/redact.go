// Package redact detects and removes secret-like content. It backs two
// things: the shadow-commit engine's gate 4 secret scan (spec §4.6) and
// the "no secrets" privacy boundary on RPC errors and notifications
// (spec §7).
package redact

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// secretPattern matches high-entropy strings that may be secrets.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a string to be
// considered a secret: high enough to avoid false positives on common
// words and identifiers, low enough to catch typical API keys and tokens.
const entropyThreshold = 4.5

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

type region struct{ start, end int }

// String replaces secrets in s with "REDACTED" using layered detection:
// entropy-based high-entropy sequences, and gitleaks' pattern rules. A
// string is redacted if either method flags it.
func String(s string) string {
	var regions []region

	for _, loc := range secretPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret == "" {
				continue
			}
			searchFrom := 0
			for {
				idx := strings.Index(s[searchFrom:], f.Secret)
				if idx < 0 {
					break
				}
				abs := searchFrom + idx
				regions = append(regions, region{abs, abs + len(f.Secret)})
				searchFrom = abs + len(f.Secret)
			}
		}
	}

	if len(regions) == 0 {
		return s
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}

	var b strings.Builder
	prev := 0
	for _, r := range merged {
		b.WriteString(s[prev:r.start])
		b.WriteString("REDACTED")
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes redacts []byte content in place of String.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// secretSubstrings are the case-insensitive literal markers spec §4.6
// gate 4 names explicitly.
var secretSubstrings = []string{
	"api key", "secret key", "password", "token",
}

// bearerTokenRegex matches "bearer <base64-ish>" headers.
var bearerTokenRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{8,}`)

// awsKeyRegex matches AWS access/secret key prefixes.
var awsKeyRegex = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)

// LooksLikeSecret implements the shadow-commit engine's gate 4 (spec
// §4.6): read the first KiB of a file and reject if any secret-like
// substring, pattern, or high-entropy/gitleaks-flagged span is present.
func LooksLikeSecret(firstKiB []byte) bool {
	s := string(firstKiB)
	lower := strings.ToLower(s)

	for _, marker := range secretSubstrings {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if bearerTokenRegex.MatchString(s) || awsKeyRegex.MatchString(s) {
		return true
	}

	return String(s) != s
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

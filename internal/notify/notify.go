// Package notify appends fire-and-forget notification records to the
// sidecar JSON file a GUI can poll (spec §6.2, §9 Open Questions:
// notifications are best-effort and never block the caller). Grounded
// on internal/config's settings-file read/merge/write idiom, generalized
// from "read once at startup" to "read-modify-write on every call" since
// notifications accumulate over the engine's lifetime.
package notify

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aimemory/engine/internal/appinfo"
)

// MaxEntries is the spec §6.2 cap: "at most 10 newest notification
// records".
const MaxEntries = 10

// Record is one notification entry (spec §6.2).
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Repository string    `json:"repository"`
	File       string    `json:"file"`
	Branch     string    `json:"branch"`
	CommitHash string    `json:"commitHash"`
	SessionID  string    `json:"sessionId,omitempty"`
}

// Sink serializes writes to the notifications file across the process.
type Sink struct {
	mu   sync.Mutex
	path string
}

// New builds a Sink over the canonical notifications path
// (~/.<app>-notifications.json). pathOverride, if non-empty, replaces the
// canonical path — used by tests.
func New(pathOverride string) (*Sink, error) {
	path := pathOverride
	if path == "" {
		p, err := appinfo.NotificationsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Sink{path: path}, nil
}

// Append adds r to the sidecar file, dropping the oldest entry beyond
// MaxEntries. Failures are logged by the caller, never propagated as
// fatal — per spec §7 this sink is best-effort.
func (s *Sink) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return err
	}

	records = append(records, r)
	if len(records) > MaxEntries {
		records = records[len(records)-MaxEntries:]
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Recent returns the stored records, newest last.
func (s *Sink) Recent() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Sink) readLocked() ([]Record, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is the canonical notifications sidecar or a test override
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// ToolUseEvent is one tool_use block surfaced for the correlator (C7):
// "does a tool-use record in the window name this path" (spec §4.7).
type ToolUseEvent struct {
	Timestamp time.Time
	Files     []string
}

// RecentToolUses reads the tail of a transcript file (at most maxLines,
// the last ones in file order) and returns the tool-use evidence needed
// to correlate a file change with the session (spec §4.7: "read the
// most recent N lines ... N ~= 200").
func RecentToolUses(r io.Reader, maxLines int) ([]ToolUseEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	var ring []rawLine
	for scanner.Scan() {
		raw := sanitizeLine(scanner.Bytes())
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var line rawLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		if line.Type != "assistant" {
			continue
		}
		ring = append(ring, line)
		if len(ring) > maxLines {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]ToolUseEvent, 0, len(ring))
	for _, line := range ring {
		files := ExtractToolFilePaths(line.Message)
		if len(files) == 0 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, line.Timestamp)
		events = append(events, ToolUseEvent{Timestamp: ts, Files: files})
	}
	return events, nil
}

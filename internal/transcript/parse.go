// Package transcript decodes one session file written by the external
// AI coding client into a Conversation and its dense ordered Messages
// (spec §4.2, C2). Grounded on
// cmd/entire/cli/agent/claudecode/transcript.go's bufio.Scanner +
// json.RawMessage decode idiom, generalized from Claude-Code-specific
// wire types to the spec §6.1 shape and extended with per-line
// surrogate-escape sanitization and tolerant skip-on-error decoding.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// scannerBufferSize matches the teacher's 10 MiB transcript line buffer.
const scannerBufferSize = 10 * 1024 * 1024

// toolResultTruncateLen is the spec §4.2 tool-result truncation length.
const toolResultTruncateLen = 200

// titleTruncateLen is the spec §4.2 title truncation length.
const titleTruncateLen = 50

// Conversation is the parsed, replace-whole-sake record for one session
// file (spec §4.2 output contract).
type Conversation struct {
	SessionID   string
	ProjectName string
	ProjectPath string
	Title       string
	SourcePath  string
}

// Message is one dense, ordered entry extracted from the transcript.
type Message struct {
	Ordinal     int
	MessageID   string
	Role        string
	Content     string
	ContentKind string
	Timestamp   time.Time
}

// Result is the full output of parsing one session file: the
// conversation header, its messages, and how many lines were skipped as
// undecodable (spec §4.2 "never abort the file").
type Result struct {
	Conversation Conversation
	Messages     []Message
	SkippedLines int
}

// rawLine mirrors the spec §6.1 wire shape. Message is kept raw because
// its "content" field is polymorphic (string or typed-block array).
type rawLine struct {
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// toolInput extracts the file path a tool-use block operated on, for the
// correlator (C7) to match against shadow-commit file events.
type toolInput struct {
	FilePath     string `json:"file_path,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`
	Path         string `json:"path,omitempty"`
}

// ParseFile streams path line-by-line (spec: "do not load the whole file
// for large sessions") and returns the conversation header and its dense
// message list.
func ParseFile(r io.Reader, sourcePath string) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	var (
		sessionID   string
		projectPath string
		title       string
		messages    []Message
		skipped     int
	)

	for scanner.Scan() {
		raw := sanitizeLine(scanner.Bytes())
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var line rawLine
		if err := json.Unmarshal(raw, &line); err != nil {
			skipped++
			continue
		}

		if sessionID == "" && line.SessionID != "" {
			sessionID = line.SessionID
		}
		if projectPath == "" && line.CWD != "" {
			projectPath = line.CWD
		}

		if line.Type == "summary" {
			continue
		}
		if line.Type != "user" && line.Type != "assistant" {
			// Unrecognized line shapes are ignored, not counted as
			// decode failures: the line parsed fine, it just isn't a
			// message we index.
			continue
		}

		content, kind, ok := extractContent(line.Message)
		if !ok {
			skipped++
			continue
		}

		ts, _ := time.Parse(time.RFC3339, line.Timestamp)

		if title == "" && line.Type == "user" {
			title = truncate(content, titleTruncateLen)
		}

		messages = append(messages, Message{
			Ordinal:     len(messages),
			MessageID:   line.UUID,
			Role:        roleFor(line.Type),
			Content:     content,
			ContentKind: kind,
			Timestamp:   ts,
		})
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("scan transcript: %w", err)
	}

	if sessionID == "" {
		sessionID = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return Result{
		Conversation: Conversation{
			SessionID:   sessionID,
			ProjectName: projectName(projectPath, sourcePath),
			ProjectPath: projectPath,
			Title:       title,
			SourcePath:  sourcePath,
		},
		Messages:     messages,
		SkippedLines: skipped,
	}, nil
}

// roleFor maps a transcript line's "type" to the stored message role.
// The only line types that reach here are "user" and "assistant" (the
// caller already filters anything else out), and the wire vocabulary
// happens to match the store's role column directly, so this is the
// identity function — kept as a named conversion point in case the two
// vocabularies ever diverge.
func roleFor(lineType string) string {
	return lineType
}

// extractContent handles both the plain-string and typed-block-array
// shapes of the "content" field (spec §4.2/§6.1), joining text parts
// with a single space, annotating tool uses inline, and truncating tool
// results.
func extractContent(rawMsg json.RawMessage) (content, kind string, ok bool) {
	if len(rawMsg) == 0 {
		return "", "", false
	}

	var msg rawMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return "", "", false
	}

	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		return asString, "text", true
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return "", "", false
	}

	var parts []string
	kinds := map[string]bool{}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
				kinds["text"] = true
			}
		case "tool_use":
			parts = append(parts, fmt.Sprintf("[Tool: %s]", b.Name))
			kinds["tool-use"] = true
		case "tool_result":
			parts = append(parts, truncate(toolResultText(b.Content), toolResultTruncateLen))
			kinds["tool-result"] = true
		}
	}

	return strings.Join(parts, " "), contentKind(kinds), len(parts) > 0
}

func contentKind(kinds map[string]bool) string {
	if len(kinds) == 0 {
		return "text"
	}
	if len(kinds) > 1 {
		return "mixed"
	}
	for k := range kinds {
		return k
	}
	return "text"
}

func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, " ")
	}
	return string(raw)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func projectName(projectPath, sourcePath string) string {
	if projectPath != "" {
		return filepath.Base(projectPath)
	}
	// Fall back to the enclosing directory of the transcript file: the
	// transcript tree is one subdirectory per project (spec §6.1).
	return filepath.Base(filepath.Dir(sourcePath))
}

// ExtractToolFilePaths returns the distinct file paths named by tool_use
// blocks across an already-parsed message list, reused by the
// correlator (C7) to compare against a shadow-commit's changed file.
// Grounded on claudecode/transcript.go's ExtractModifiedFiles.
func ExtractToolFilePaths(rawMsg json.RawMessage) []string {
	var msg rawMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return nil
	}
	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	for _, b := range blocks {
		if b.Type != "tool_use" {
			continue
		}
		var in toolInput
		if err := json.Unmarshal(b.Input, &in); err != nil {
			continue
		}
		file := in.FilePath
		if file == "" {
			file = in.NotebookPath
		}
		if file == "" {
			file = in.Path
		}
		if file != "" && !seen[file] {
			seen[file] = true
			out = append(out, file)
		}
	}
	return out
}

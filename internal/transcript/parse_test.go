package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseFile_S1Scenario exercises the literal S1 scenario from
// spec.md §8: 6 lines (1 summary, 1 user, 4 assistant) -> 5 messages.
func TestParseFile_S1Scenario(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"summary","sessionId":"4a77fa00-...8","cwd":"/home/me/ketchup"}`,
		`{"type":"user","sessionId":"4a77fa00-...8","cwd":"/home/me/ketchup","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"tell me about ketchup"}}`,
		`{"type":"assistant","sessionId":"4a77fa00-...8","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"Ketchup is a condiment."}]}}`,
		`{"type":"assistant","sessionId":"4a77fa00-...8","timestamp":"2026-01-01T00:00:02Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"search","input":{}}]}}`,
		`{"type":"assistant","sessionId":"4a77fa00-...8","timestamp":"2026-01-01T00:00:03Z","message":{"role":"assistant","content":[{"type":"tool_result","content":"result text"}]}}`,
		`{"type":"assistant","sessionId":"4a77fa00-...8","timestamp":"2026-01-01T00:00:04Z","message":{"role":"assistant","content":[{"type":"text","text":"Done."}]}}`,
	}, "\n")

	result, err := ParseFile(strings.NewReader(input), "/transcripts/ketchup/4a77fa00-....jsonl")
	require.NoError(t, err)

	require.Equal(t, "4a77fa00-...8", result.Conversation.SessionID)
	require.Equal(t, "ketchup", result.Conversation.ProjectName)
	require.Equal(t, "tell me about ketchup", result.Conversation.Title)
	require.Len(t, result.Messages, 5)
	for i, m := range result.Messages {
		require.Equal(t, i, m.Ordinal)
	}
}

func TestParseFile_GeneratesSessionIDWhenMissing(t *testing.T) {
	input := `{"type":"user","message":{"role":"user","content":"hi"}}`
	result, err := ParseFile(strings.NewReader(input), "/tmp/proj/no-id.jsonl")
	require.NoError(t, err)
	require.Equal(t, "no-id", result.Conversation.SessionID)
}

func TestParseFile_FallsBackToFileBasenameThenUUID(t *testing.T) {
	// No sessionId field anywhere and the source path has no usable
	// basename (empty string) forces UUID generation.
	input := `{"type":"user","message":{"role":"user","content":"hi"}}`
	result, err := ParseFile(strings.NewReader(input), "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Conversation.SessionID)
}

func TestParseFile_SkipsMalformedLinesWithoutAborting(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","sessionId":"s1","message":{"role":"user","content":"first"}}`,
		`not json at all {{{`,
		`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"text","text":"ok"}]}}`,
	}, "\n")

	result, err := ParseFile(strings.NewReader(input), "/tmp/proj/s1.jsonl")
	require.NoError(t, err)
	require.Equal(t, 1, result.SkippedLines)
	require.Len(t, result.Messages, 2)
}

func TestParseFile_RepairsLoneSurrogateHalf(t *testing.T) {
	// A lone high surrogate with no matching low half must not make the
	// whole line fail to decode (spec §4.2/§8 boundary behavior).
	input := `{"type":"user","sessionId":"s1","message":{"role":"user","content":"broken \uD800 escape"}}`
	result, err := ParseFile(strings.NewReader(input), "/tmp/proj/s1.jsonl")
	require.NoError(t, err)
	require.Equal(t, 0, result.SkippedLines)
	require.Len(t, result.Messages, 1)
	require.Contains(t, result.Messages[0].Content, "broken")
}

func TestParseFile_ToolResultTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	input := `{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"tool_result","content":"` + long + `"}]}}`
	result, err := ParseFile(strings.NewReader(input), "/tmp/proj/s1.jsonl")
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	require.LessOrEqual(t, len([]rune(result.Messages[0].Content)), toolResultTruncateLen+3)
	require.True(t, strings.HasSuffix(result.Messages[0].Content, "..."))
}

func TestParseFile_SummaryLinesSkipped(t *testing.T) {
	input := `{"type":"summary","sessionId":"s1","message":{"role":"assistant","content":"summary text"}}`
	result, err := ParseFile(strings.NewReader(input), "/tmp/proj/s1.jsonl")
	require.NoError(t, err)
	require.Empty(t, result.Messages)
}

func TestExtractToolFilePaths(t *testing.T) {
	raw := []byte(`{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/a/b.go"}},{"type":"tool_use","name":"Edit","input":{"file_path":"/a/b.go"}}]}`)
	files := ExtractToolFilePaths(raw)
	require.Equal(t, []string{"/a/b.go"}, files)
}

package tracking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	return OpenLog(filepath.Join(t.TempDir(), "report"+LogSuffix), nil)
}

func TestLogAppendAndRead(t *testing.T) {
	l := testLog(t)

	require.NoError(t, l.AppendRequest(RequestRecord{
		CustomID: "report-chunk-0",
		Body:     json.RawMessage(`{"input":"first chunk"}`),
	}))
	require.NoError(t, l.AppendTracking(TrackingRecord{
		BatchID:   "batch_abc",
		Timestamp: "2026-08-29T10:00:00Z",
		BatchFile: "report_part001.jsonl",
	}))

	c, err := l.Read()
	require.NoError(t, err)
	require.Len(t, c.Requests, 1)
	require.Len(t, c.Tracking, 1)
	assert.Equal(t, "report-chunk-0", c.Requests[0].CustomID)
	assert.Equal(t, "batch_abc", c.Tracking[0].BatchID)
	assert.Zero(t, c.Malformed)
}

func TestLogReadMixedLines(t *testing.T) {
	l := testLog(t)
	lines := []string{
		`{"batch_request":{"custom_id":"doc-chunk-0","body":{"input":"a"}}}`,
		`{"batch_tracking":{"batch_id":"batch_1","timestamp":"2026-08-29T10:00:00Z","batch_file":"doc_part001.jsonl"}}`,
		`{"response":{"choices":[{"message":{"content":"{}"}}]},"custom_id":"doc-chunk-0","chunk_range":[0,10]}`,
		`this is not json`,
		``,
	}
	require.NoError(t, os.WriteFile(l.Path(), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	c, err := l.Read()
	require.NoError(t, err)
	assert.Len(t, c.Requests, 1)
	assert.Len(t, c.Tracking, 1)
	require.Len(t, c.Responses, 1)
	assert.Equal(t, "doc-chunk-0", c.Responses[0].CustomID)
	assert.Equal(t, []int{0, 10}, c.Responses[0].ChunkRange)
	assert.Equal(t, 1, c.Malformed, "one malformed line skipped, not fatal")
}

func TestLogReadMissingFile(t *testing.T) {
	l := testLog(t)
	c, err := l.Read()
	require.NoError(t, err)
	assert.Empty(t, c.Tracking)
	assert.Empty(t, c.Responses)
}

func TestLogAppendIsAppendOnly(t *testing.T) {
	l := testLog(t)
	require.NoError(t, l.AppendTracking(TrackingRecord{BatchID: "batch_1"}))

	before, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	require.NoError(t, l.AppendTracking(TrackingRecord{BatchID: "batch_2"}))
	after, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(after), string(before)),
		"appends must never rewrite existing lines")
}

func TestLogStemAndArtifactPath(t *testing.T) {
	dir := t.TempDir()
	l := OpenLog(filepath.Join(dir, "annual_report"+LogSuffix), nil)
	assert.Equal(t, "annual_report", l.Stem())
	assert.Equal(t, filepath.Join(dir, "annual_report"+DebugArtifactSuffix), l.DebugArtifactPath())
}

func TestFindLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b" + LogSuffix, "a" + LogSuffix, "a" + DebugArtifactSuffix, "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}
	logs, err := FindLogs(dir)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, filepath.Join(dir, "a"+LogSuffix), logs[0])
	assert.Equal(t, filepath.Join(dir, "b"+LogSuffix), logs[1])
}

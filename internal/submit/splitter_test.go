package submit

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmine/docbatch/internal/tracking"
)

func makeRequests(t *testing.T, n int) []tracking.RequestRecord {
	t.Helper()
	out := make([]tracking.RequestRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tracking.RequestRecord{
			CustomID: fmt.Sprintf("doc-chunk-%d", i),
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body:     json.RawMessage(fmt.Sprintf(`{"order_index":%d,"input":"chunk %d"}`, i, i)),
		})
	}
	return out
}

func TestSplitRespectsBothLimits(t *testing.T) {
	requests := makeRequests(t, 37)

	for _, tc := range []struct {
		maxCount int
		maxBytes int
	}{
		{maxCount: 5, maxBytes: 1 << 20},
		{maxCount: 100, maxBytes: 200},
		{maxCount: 7, maxBytes: 300},
		{maxCount: 1, maxBytes: 10},
	} {
		parts, err := Split(requests, tc.maxCount, tc.maxBytes)
		require.NoError(t, err)

		var rejoined []tracking.RequestRecord
		for _, part := range parts {
			assert.LessOrEqual(t, len(part.Requests), tc.maxCount)
			if len(part.Requests) > 1 {
				assert.LessOrEqual(t, len(part.Payload), tc.maxBytes,
					"multi-request part must respect the byte limit")
			}
			rejoined = append(rejoined, part.Requests...)
		}

		// Concatenating all parts reproduces the input order exactly.
		require.Len(t, rejoined, len(requests))
		for i := range requests {
			assert.Equal(t, requests[i].CustomID, rejoined[i].CustomID)
		}
	}
}

func TestSplitOversizeRequestGoesAlone(t *testing.T) {
	big := tracking.RequestRecord{
		CustomID: "doc-chunk-0",
		Body:     json.RawMessage(fmt.Sprintf(`{"input":%q}`, strings.Repeat("a", 500))),
	}
	small := tracking.RequestRecord{CustomID: "doc-chunk-1", Body: json.RawMessage(`{}`)}

	parts, err := Split([]tracking.RequestRecord{big, small}, 10, 100)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "doc-chunk-0", parts[0].Requests[0].CustomID)
	assert.Len(t, parts[0].Requests, 1)
	assert.Equal(t, "doc-chunk-1", parts[1].Requests[0].CustomID)
}

func TestSplitPayloadMatchesRequests(t *testing.T) {
	requests := makeRequests(t, 8)
	parts, err := Split(requests, 3, 1<<20)
	require.NoError(t, err)

	for _, part := range parts {
		lines := 0
		for _, b := range part.Payload {
			if b == '\n' {
				lines++
			}
		}
		assert.Equal(t, len(part.Requests), lines, "one NDJSON line per request")
	}
}

func TestSplitRejectsBadLimits(t *testing.T) {
	_, err := Split(makeRequests(t, 1), 0, 100)
	require.Error(t, err)
	_, err = Split(makeRequests(t, 1), 10, 0)
	require.Error(t, err)
}

func TestSplitEmptyInput(t *testing.T) {
	parts, err := Split(nil, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

package repair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmine/docbatch/internal/batchapi"
	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/core"
	"github.com/structmine/docbatch/internal/poll"
	"github.com/structmine/docbatch/internal/retrieve"
	"github.com/structmine/docbatch/internal/tracking"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		n       int
		want    []int
		quit    bool
		wantErr bool
	}{
		{name: "single", input: "2", n: 3, want: []int{2}},
		{name: "list", input: "1, 3", n: 3, want: []int{1, 3}},
		{name: "dedup", input: "2,2,1", n: 3, want: []int{2, 1}},
		{name: "quit token", input: "q", n: 3, quit: true},
		{name: "quit word", input: "QUIT", n: 3, quit: true},
		{name: "empty", input: "  ", n: 3, wantErr: true},
		{name: "not a number", input: "one", n: 3, wantErr: true},
		{name: "zero", input: "0", n: 3, wantErr: true},
		{name: "out of range", input: "4", n: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, quit, err := ParseSelection(tt.input, tt.n)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.quit, quit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newRepairTool(t *testing.T, batches map[string]*batchapi.Batch, files map[string]string) *Tool {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		b, ok := batches[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(b)
	})
	mux.HandleFunc("GET /files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"message":"not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api := batchapi.NewClient(batchapi.Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
		Retry:   batchapi.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: batchapi.IsTransient},
	}, nil)
	proc := core.NewProcessor(nil, poll.NewPoller(api, nil), retrieve.NewRetriever(api, nil), nil, true, 1)
	return NewTool(proc, nil)
}

func makeGroup(t *testing.T) common.Group {
	t.Helper()
	return common.Group{Name: "reports", TrackingDir: t.TempDir(), OutputDir: t.TempDir()}
}

func TestScanCandidates(t *testing.T) {
	tool := newRepairTool(t, nil, nil)
	group := makeGroup(t)

	logPath := filepath.Join(group.TrackingDir, "doc"+tracking.LogSuffix)
	content := `{"batch_tracking":{"batch_id":"batch_a","timestamp":"2026-08-29T10:00:00Z","batch_file":"p1.jsonl"}}
{"custom_id":"doc-chunk-0","response":{"ok":true},"raw_response":{}}
`
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(group.TrackingDir, "doc"+tracking.DebugArtifactSuffix),
		[]byte(`{"batch_ids":["batch_a"]}`), 0o644))

	cands := tool.ScanCandidates([]common.Group{group})
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].TrackingCount)
	assert.Equal(t, 1, cands[0].ResponseCount)
	assert.True(t, cands[0].ArtifactExists)
	assert.False(t, cands[0].FinalExists)
	assert.Contains(t, cands[0].Describe(1), "doc"+tracking.LogSuffix)
}

func TestScanCandidatesSkipsUnreadableGroup(t *testing.T) {
	tool := newRepairTool(t, nil, nil)
	good := makeGroup(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(good.TrackingDir, "doc"+tracking.LogSuffix), nil, 0o644))
	bad := common.Group{Name: "ghost", TrackingDir: filepath.Join(t.TempDir(), "missing"), OutputDir: t.TempDir()}

	cands := tool.ScanCandidates([]common.Group{bad, good})
	require.Len(t, cands, 1)
	assert.Equal(t, "reports", cands[0].Group.Name)
}

func TestRepairUnrepairableSelectionDoesNotBlockOthers(t *testing.T) {
	batches := map[string]*batchapi.Batch{
		"batch_ok": {ID: "batch_ok", Status: "completed", OutputFileID: "file_ok"},
	}
	files := map[string]string{
		"file_ok": `{"id":"r0","custom_id":"doc-chunk-0","response":{"status_code":200,"body":{"choices":[{"message":{"content":"hello"}}]}}}`,
	}
	tool := newRepairTool(t, batches, files)
	group := makeGroup(t)

	// First log: no tracking records and no debug artifact.
	deadPath := filepath.Join(group.TrackingDir, "dead"+tracking.LogSuffix)
	require.NoError(t, os.WriteFile(deadPath, nil, 0o644))

	// Second log: a completed batch ready to retrieve.
	livePath := filepath.Join(group.TrackingDir, "live"+tracking.LogSuffix)
	require.NoError(t, os.WriteFile(livePath,
		[]byte(`{"batch_tracking":{"batch_id":"batch_ok","timestamp":"2026-08-29T10:00:00Z","batch_file":"p1.jsonl"}}`+"\n"), 0o644))

	cands := tool.ScanCandidates([]common.Group{group})
	require.Len(t, cands, 2)

	outcomes := tool.Repair(context.Background(), cands, []int{1, 2})
	require.Len(t, outcomes, 2)

	assert.True(t, outcomes[0].Unrepairable)
	assert.Error(t, outcomes[0].Err)

	assert.False(t, outcomes[1].Unrepairable)
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, 1, outcomes[1].Responses)
	assert.FileExists(t, outcomes[1].OutputPath)
}

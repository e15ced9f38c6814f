package runindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, s.StartRun(ctx, "run-1", "invoices", start))
	require.NoError(t, s.RecordBatch(ctx, "run-1", "batch_a", "/logs/doc_batch_log.jsonl", "completed", 10, 0, 10))
	require.NoError(t, s.FinishRun(ctx, "run-1", 3, 2, start.Add(time.Minute)))

	runs, err := s.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "invoices", runs[0].Group)
	assert.Equal(t, 3, runs[0].LogsScanned)
	assert.Equal(t, 2, runs[0].LogsCompleted)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestRecordBatchUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StartRun(ctx, "run-1", "invoices", time.Now()))
	require.NoError(t, s.RecordBatch(ctx, "run-1", "batch_a", "/logs/a.jsonl", "in_progress", 4, 0, 10))
	// A later observation within the same run replaces the earlier row.
	require.NoError(t, s.RecordBatch(ctx, "run-1", "batch_a", "/logs/a.jsonl", "completed", 10, 0, 10))

	var status string
	var completed int
	row := s.db.QueryRowContext(ctx,
		`SELECT status, completed FROM batch_statuses WHERE run_id = ? AND batch_id = ?`, "run-1", "batch_a")
	require.NoError(t, row.Scan(&status, &completed))
	assert.Equal(t, "completed", status)
	assert.Equal(t, 10, completed)
}

func TestRecentRunsFiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, s.StartRun(ctx, "run-old", "invoices", base))
	require.NoError(t, s.StartRun(ctx, "run-new", "invoices", base.Add(30*time.Minute)))
	require.NoError(t, s.StartRun(ctx, "run-other", "reports", base.Add(10*time.Minute)))

	runs, err := s.RecentRuns(ctx, "invoices", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID, "most recent first")
	assert.Equal(t, "run-old", runs[1].ID)

	limited, err := s.RecentRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/structmine/docbatch/constants"
	"github.com/structmine/docbatch/internal/batchapi"
)

// StatusClient is the slice of the remote client the poller needs.
type StatusClient interface {
	GetBatch(ctx context.Context, batchID string) (*batchapi.Batch, error)
}

// Snapshot is the polling-scoped view of one batch. Never persisted:
// status is always re-derived from the remote system on the next run.
type Snapshot struct {
	BatchID      string
	Status       constants.BatchStatus
	OutputFileID string
	ErrorFileID  string
	Counts       batchapi.RequestCounts
	Diagnostic   string
}

// Poller resolves batch statuses with a process-local cache so the same id
// referenced from multiple tracking logs is queried once per invocation.
type Poller struct {
	api    StatusClient
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]Snapshot
}

func NewPoller(api StatusClient, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:    api,
		logger: logger,
		cache:  make(map[string]Snapshot),
	}
}

// Poll returns the status snapshot for one batch id. A lookup error yields
// status unknown (non-terminal, retried on the next run), never an error:
// one unreachable batch must not abort the scan of the rest.
func (p *Poller) Poll(ctx context.Context, batchID string) Snapshot {
	p.mu.Lock()
	if snap, ok := p.cache[batchID]; ok {
		p.mu.Unlock()
		p.logger.Debug("poll.cache_hit", "batch_id", batchID, "status", snap.Status)
		return snap
	}
	p.mu.Unlock()

	snap := p.lookup(ctx, batchID)

	p.mu.Lock()
	p.cache[batchID] = snap
	p.mu.Unlock()
	return snap
}

func (p *Poller) lookup(ctx context.Context, batchID string) Snapshot {
	batch, err := p.api.GetBatch(ctx, batchID)
	if err != nil {
		snap := Snapshot{BatchID: batchID, Status: constants.BatchStatusUnknown}
		snap.Diagnostic = p.diagnoseLookupFailure(batchID, err)
		p.logger.Warn("poll.lookup_failed",
			"batch_id", batchID,
			"error", err,
			"diagnostic", snap.Diagnostic,
		)
		return snap
	}

	snap := Snapshot{
		BatchID:      batchID,
		Status:       constants.MapRemoteStatus(batch.Status),
		OutputFileID: batch.OutputFileID,
		ErrorFileID:  batch.ErrorFileID,
	}
	if batch.RequestCounts != nil {
		snap.Counts = *batch.RequestCounts
	}
	if snap.Status == constants.BatchStatusFailed {
		snap.Diagnostic = diagnoseFailure(batch)
	}

	p.logger.Info("poll.status",
		"batch_id", batchID,
		"status", snap.Status,
		"remote_status", batch.Status,
		"completed", snap.Counts.Completed,
		"failed", snap.Counts.Failed,
		"total", snap.Counts.Total,
	)
	return snap
}

// diagnoseLookupFailure is best-effort: it only shapes an explanation and
// never introduces a new failure of its own.
func (p *Poller) diagnoseLookupFailure(batchID string, err error) string {
	switch batchapi.StatusOf(err) {
	case 404:
		return fmt.Sprintf("batch %s not found — may have been deleted or submitted under a different credential", batchID)
	case 401, 403:
		return "credential rejected by the batch API"
	case 429:
		return "rate limited; will retry on the next run"
	default:
		return "status lookup failed; treated as still in progress"
	}
}

// diagnoseFailure summarizes batch-level errors for a terminally failed
// batch into one human-readable line.
func diagnoseFailure(b *batchapi.Batch) string {
	if b.Errors == nil || len(b.Errors.Data) == 0 {
		return "batch failed without error detail"
	}
	first := b.Errors.Data[0]
	msg := first.Message
	if first.Code != "" {
		msg = first.Code + ": " + msg
	}
	if n := len(b.Errors.Data); n > 1 {
		msg = fmt.Sprintf("%s (+%d more)", msg, n-1)
	}
	return msg
}

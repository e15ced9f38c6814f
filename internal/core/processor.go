package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/structmine/docbatch/constants"
	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/poll"
	"github.com/structmine/docbatch/internal/reconcile"
	"github.com/structmine/docbatch/internal/retrieve"
	"github.com/structmine/docbatch/internal/runindex"
	"github.com/structmine/docbatch/internal/schema"
	"github.com/structmine/docbatch/internal/tracking"
)

// Processor coordinates the check pipeline for tracking logs: poll tracked
// batches, recover lost ids, retrieve completed output, reconcile, and
// write the final result. It never resubmits work.
type Processor struct {
	logger          *slog.Logger
	poller          *poll.Poller
	retriever       *retrieve.Retriever
	index           *runindex.Store // optional, advisory
	persistRecovery bool
	parallelism     int
}

func NewProcessor(
	logger *slog.Logger,
	poller *poll.Poller,
	retriever *retrieve.Retriever,
	index *runindex.Store,
	persistRecovery bool,
	parallelism int,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Processor{
		logger:          logger,
		poller:          poller,
		retriever:       retriever,
		index:           index,
		persistRecovery: persistRecovery,
		parallelism:     parallelism,
	}
}

// LogOutcome is the result of processing one tracking log.
type LogOutcome struct {
	Group        string
	LogPath      string
	OutputPath   string
	Result       *tracking.FinalResult
	Unrepairable bool
	Err          error
}

// GroupSummary aggregates one group's scan.
type GroupSummary struct {
	Group         string
	RunID         string
	LogsScanned   int
	LogsCompleted int
	Outcomes      []LogOutcome
}

// CheckGroup scans every tracking log in a group with bounded parallelism.
// Individual log failures are carried in the outcomes, never aborting the
// scan of the rest.
func (p *Processor) CheckGroup(ctx context.Context, group common.Group) (*GroupSummary, error) {
	runID := uuid.New().String()
	start := time.Now()

	logs, err := tracking.FindLogs(group.TrackingDir)
	if err != nil {
		return nil, fmt.Errorf("scan group %s: %w", group.Name, err)
	}

	var compiled *jsonschema.Schema
	if group.SchemaFile != "" {
		compiled, err = schema.Compile(group.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group.Name, err)
		}
	}

	p.logger.Info("check.group.start",
		"run_id", runID, "group", group.Name, "logs", len(logs))

	if p.index != nil {
		if err := p.index.StartRun(ctx, runID, group.Name, start); err != nil {
			p.logger.Warn("check.index_start_failed", "run_id", runID, "error", err)
		}
	}

	outcomes := make([]LogOutcome, len(logs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, logPath := range logs {
		g.Go(func() error {
			outcomes[i] = p.ProcessLog(gctx, group, logPath, compiled, runID)
			return nil
		})
	}
	_ = g.Wait()

	summary := &GroupSummary{Group: group.Name, RunID: runID, LogsScanned: len(logs), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Result != nil && o.Result.Metadata.FullyCompleted {
			summary.LogsCompleted++
		}
	}

	if p.index != nil {
		if err := p.index.FinishRun(ctx, runID, summary.LogsScanned, summary.LogsCompleted, time.Now()); err != nil {
			p.logger.Warn("check.index_finish_failed", "run_id", runID, "error", err)
		}
	}

	p.logger.Info("check.group.ok",
		"run_id", runID,
		"group", group.Name,
		"logs_scanned", summary.LogsScanned,
		"logs_completed", summary.LogsCompleted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// ProcessLog runs poll → recover → retrieve → reconcile → finalize for one
// tracking log. Batch ids within the log are polled sequentially; the
// poller's process-local cache spares repeat lookups across logs.
func (p *Processor) ProcessLog(ctx context.Context, group common.Group, logPath string, compiled *jsonschema.Schema, runID string) LogOutcome {
	outcome := LogOutcome{Group: group.Name, LogPath: logPath}
	l := tracking.OpenLog(logPath, p.logger)

	contents, err := l.Read()
	if err != nil {
		outcome.Err = err
		p.logger.Error("check.log.read_failed", "run_id", runID, "log", logPath, "error", err)
		return outcome
	}

	trackingRecs := contents.Tracking
	var recoveredIDs []string
	if len(trackingRecs) == 0 {
		recovered, err := tracking.RecoverBatchIDs(l, p.persistRecovery, p.logger)
		if err != nil {
			if errors.Is(err, common.ErrUnrecoverable) {
				outcome.Unrepairable = true
			}
			outcome.Err = err
			p.logger.Error("check.log.unrecoverable", "run_id", runID, "log", logPath, "error", err)
			return outcome
		}
		trackingRecs = recovered
		for _, rec := range recovered {
			recoveredIDs = append(recoveredIDs, rec.BatchID)
		}
	}

	meta := tracking.ProcessingMetadata{
		MissingBatchIDs:   []string{},
		RecoveredBatchIDs: recoveredIDs,
		OrderedByCustomID: true,
	}
	if meta.RecoveredBatchIDs == nil {
		meta.RecoveredBatchIDs = []string{}
	}

	var retrieved []tracking.ResponseRecord
	allTerminal := len(trackingRecs) > 0
	polled := make(map[string]struct{}, len(trackingRecs))
	for _, rec := range trackingRecs {
		if _, done := polled[rec.BatchID]; done {
			continue
		}
		polled[rec.BatchID] = struct{}{}

		snap := p.poller.Poll(ctx, rec.BatchID)
		if p.index != nil {
			if err := p.index.RecordBatch(ctx, runID, rec.BatchID, logPath,
				string(snap.Status), snap.Counts.Completed, snap.Counts.Failed, snap.Counts.Total); err != nil {
				p.logger.Warn("check.index_record_failed", "run_id", runID, "batch_id", rec.BatchID, "error", err)
			}
		}

		switch {
		case snap.Status == constants.BatchStatusCompleted:
			meta.CompletedCount++
			recs, err := p.retriever.Retrieve(ctx, snap)
			if err != nil {
				// Treat a retrieval failure like a still-missing batch: the
				// next run re-derives status and tries again.
				p.logger.Error("check.retrieve_failed",
					"run_id", runID, "log", logPath, "batch_id", rec.BatchID, "error", err)
				meta.MissingBatchIDs = append(meta.MissingBatchIDs, rec.BatchID)
				allTerminal = false
				continue
			}
			retrieved = append(retrieved, recs...)
		case snap.Status.IsTerminal():
			meta.FailedCount++
			meta.FailedBatches = append(meta.FailedBatches, tracking.FailedBatch{
				BatchID:    rec.BatchID,
				Status:     string(snap.Status),
				Diagnostic: snap.Diagnostic,
			})
		default:
			meta.MissingBatchIDs = append(meta.MissingBatchIDs, rec.BatchID)
			allTerminal = false
		}
	}
	meta.FullyCompleted = allTerminal && meta.FailedCount == 0

	orderMap := reconcile.BuildOrderMap(contents.Requests)
	responses := reconcile.Merge(contents.Responses, retrieved, orderMap, p.logger)

	if compiled != nil {
		p.validateResponses(compiled, responses, &meta)
	}

	result := &tracking.FinalResult{
		Responses: responses,
		Tracking:  trackingRecs,
		Metadata:  meta,
	}
	if len(orderMap) > 0 {
		result.CustomIDMap = orderMap
	}
	outcome.Result = result

	if len(responses) == 0 {
		p.logger.Warn("check.log.no_responses",
			"run_id", runID, "log", logPath,
			"missing", len(meta.MissingBatchIDs), "failed", meta.FailedCount)
		return outcome
	}

	outPath := filepath.Join(group.OutputDir, l.Stem()+tracking.FinalResultSuffix)
	if err := writeFinalResult(outPath, result); err != nil {
		outcome.Err = err
		p.logger.Error("check.log.write_failed", "run_id", runID, "log", logPath, "error", err)
		return outcome
	}
	outcome.OutputPath = outPath

	p.logger.Info("check.log.ok",
		"run_id", runID,
		"log", logPath,
		"responses", len(responses),
		"fully_completed", meta.FullyCompleted,
		"completed", meta.CompletedCount,
		"failed", meta.FailedCount,
		"missing", len(meta.MissingBatchIDs),
		"output", outPath,
	)
	return outcome
}

// validateResponses checks each response's extracted record against the
// group schema. Invalid records are flagged in metadata, never dropped.
func (p *Processor) validateResponses(compiled *jsonschema.Schema, responses []tracking.ResponseRecord, meta *tracking.ProcessingMetadata) {
	for _, rec := range responses {
		text, ok := reconcile.Text(rec.Response)
		if !ok {
			meta.SchemaInvalidIDs = append(meta.SchemaInvalidIDs, rec.CustomID)
			continue
		}
		if err := schema.Validate(compiled, []byte(text)); err != nil {
			p.logger.Warn("check.schema_invalid", "custom_id", rec.CustomID, "error", err)
			meta.SchemaInvalidIDs = append(meta.SchemaInvalidIDs, rec.CustomID)
			continue
		}
		meta.SchemaValidCount++
	}
}

func writeFinalResult(path string, result *tracking.FinalResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal final result: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write final result: %w", err)
	}
	return nil
}

package submit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/structmine/docbatch/internal/batchapi"
	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/tracking"
)

// BatchAPI is the slice of the remote client the submitter needs.
type BatchAPI interface {
	UploadBatchFile(ctx context.Context, filename string, content []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID string) (*batchapi.Batch, error)
}

// Submitter turns an ordered request list into size-bounded batch payloads,
// submits each independently, and appends one tracking record per success.
type Submitter struct {
	api      BatchAPI
	logger   *slog.Logger
	maxCount int
	maxBytes int
}

func NewSubmitter(api BatchAPI, cfg common.BatchConfig, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		api:      api,
		logger:   logger,
		maxCount: cfg.MaxRequestsPerBatch,
		maxBytes: cfg.MaxBytesPerBatch,
	}
}

// Result reports what a submission run accomplished. Prior successes are
// never rolled back on a later failure: partial submission is a valid,
// recoverable state that polling and recovery reconcile later.
type Result struct {
	BatchIDs       []string
	PartsSubmitted int
	PartsTotal     int
	Requests       int
}

// Submit splits requests and submits every part, journaling each request
// and appending a tracking record to log after each successful submission.
// The debug artifact is updated per part so recovery has a redundant copy
// of the ids even if the log write is lost.
func (s *Submitter) Submit(ctx context.Context, log *tracking.Log, requests []tracking.RequestRecord) (*Result, error) {
	runID := uuid.New().String()
	start := time.Now()

	parts, err := Split(requests, s.maxCount, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("split requests: %w", err)
	}

	s.logger.Info("submit.start",
		"run_id", runID,
		"log", log.Path(),
		"requests", len(requests),
		"parts", len(parts),
	)

	res := &Result{PartsTotal: len(parts), Requests: len(requests)}
	for i, part := range parts {
		filename := fmt.Sprintf("%s_part%03d.jsonl", log.Stem(), i+1)

		for _, req := range part.Requests {
			if err := log.AppendRequest(req); err != nil {
				return res, fmt.Errorf("journal request %s: %w", req.CustomID, err)
			}
		}

		fileID, err := s.api.UploadBatchFile(ctx, filename, part.Payload)
		if err != nil {
			s.logger.Error("submit.upload_failed",
				"run_id", runID, "log", log.Path(), "part", i+1, "file", filename, "error", err)
			return res, fmt.Errorf("upload part %d (%s): %w", i+1, filename, err)
		}

		batch, err := s.api.CreateBatch(ctx, fileID)
		if err != nil {
			s.logger.Error("submit.create_failed",
				"run_id", runID, "log", log.Path(), "part", i+1, "input_file_id", fileID, "error", err)
			return res, fmt.Errorf("create batch for part %d (%s): %w", i+1, filename, err)
		}

		rec := tracking.TrackingRecord{
			BatchID:   batch.ID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			BatchFile: filename,
		}
		if err := log.AppendTracking(rec); err != nil {
			// The batch is live remotely; the debug artifact below is the
			// fallback the recovery engine reads.
			s.logger.Error("submit.tracking_append_failed",
				"run_id", runID, "log", log.Path(), "batch_id", batch.ID, "error", err)
		}
		if err := tracking.WriteDebugArtifact(log, []string{batch.ID}); err != nil {
			s.logger.Warn("submit.debug_artifact_failed",
				"run_id", runID, "log", log.Path(), "batch_id", batch.ID, "error", err)
		}

		res.BatchIDs = append(res.BatchIDs, batch.ID)
		res.PartsSubmitted++
		s.logger.Info("submit.part.ok",
			"run_id", runID,
			"log", log.Path(),
			"part", i+1,
			"parts", len(parts),
			"batch_id", batch.ID,
			"requests", len(part.Requests),
			"bytes", len(part.Payload),
		)
	}

	s.logger.Info("submit.ok",
		"run_id", runID,
		"log", log.Path(),
		"batches", len(res.BatchIDs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ReadRequestsFile parses a prepared requests file: newline-delimited JSON,
// one RequestRecord per line. Every line must carry a custom_id.
func ReadRequestsFile(path string) ([]tracking.RequestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requests file: %w", err)
	}
	defer f.Close()

	var out []tracking.RequestRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var req tracking.RequestRecord
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil, fmt.Errorf("requests file line %d: %w", lineNo, err)
		}
		if req.CustomID == "" {
			return nil, fmt.Errorf("requests file line %d: missing custom_id: %w", lineNo, common.ErrInvalidInput)
		}
		out = append(out, req)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan requests file: %w", err)
	}
	return out, nil
}

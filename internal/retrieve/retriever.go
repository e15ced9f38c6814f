package retrieve

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/structmine/docbatch/internal/poll"
	"github.com/structmine/docbatch/internal/tracking"
)

// ContentClient is the slice of the remote client the retriever needs.
type ContentClient interface {
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// Retriever downloads and parses a completed batch's output into
// per-request response records.
type Retriever struct {
	api    ContentClient
	logger *slog.Logger
}

func NewRetriever(api ContentClient, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{api: api, logger: logger}
}

// outputLine is one line of the remote output file.
type outputLine struct {
	ID       string            `json:"id"`
	CustomID string            `json:"custom_id"`
	Response *responseEnvelope `json:"response"`
	Error    json.RawMessage   `json:"error,omitempty"`
}

type responseEnvelope struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// Retrieve pulls responses for one completed batch. An absent output file
// with a present error file is an expected completion mode (all requests
// failed): the error file is downloaded for diagnostics and an empty result
// is returned. Malformed output lines are logged and skipped, never fatal.
func (r *Retriever) Retrieve(ctx context.Context, snap poll.Snapshot) ([]tracking.ResponseRecord, error) {
	start := time.Now()

	if snap.OutputFileID == "" {
		if snap.ErrorFileID != "" {
			r.logErrorFile(ctx, snap)
		} else {
			r.logger.Warn("retrieve.no_output", "batch_id", snap.BatchID)
		}
		return nil, nil
	}

	raw, err := r.api.FileContent(ctx, snap.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("download output of %s: %w", snap.BatchID, err)
	}

	records, skipped := r.parseOutput(snap.BatchID, raw)
	r.logger.Info("retrieve.ok",
		"batch_id", snap.BatchID,
		"responses", len(records),
		"skipped_lines", skipped,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

func (r *Retriever) parseOutput(batchID string, raw []byte) ([]tracking.ResponseRecord, int) {
	var records []tracking.ResponseRecord
	skipped := 0

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ol outputLine
		if err := json.Unmarshal([]byte(line), &ol); err != nil {
			skipped++
			r.logger.Warn("retrieve.malformed_line",
				"batch_id", batchID, "line", lineNo, "error", err)
			continue
		}
		rec := tracking.ResponseRecord{
			CustomID: ol.CustomID,
			Raw:      json.RawMessage(line),
		}
		if ol.Response != nil {
			rec.Response = ol.Response.Body
		}
		records = append(records, rec)
	}
	return records, skipped
}

// logErrorFile downloads the error file for diagnostics only. Best-effort:
// its own failures are logged and swallowed.
func (r *Retriever) logErrorFile(ctx context.Context, snap poll.Snapshot) {
	raw, err := r.api.FileContent(ctx, snap.ErrorFileID)
	if err != nil {
		r.logger.Warn("retrieve.error_file_failed",
			"batch_id", snap.BatchID, "error_file_id", snap.ErrorFileID, "error", err)
		return
	}
	lines := 0
	sample := ""
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++
		if sample == "" {
			if len(line) > 512 {
				line = line[:512]
			}
			sample = line
		}
	}
	r.logger.Warn("retrieve.all_failed",
		"batch_id", snap.BatchID,
		"error_lines", lines,
		"first_error", sample,
	)
}

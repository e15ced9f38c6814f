package tracking

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// LogSuffix is the filename suffix of a tracking log.
	LogSuffix = "_batch_log.jsonl"
	// DebugArtifactSuffix names the redundant submission side-file.
	DebugArtifactSuffix = "_batch_submission_debug.json"
	// FinalResultSuffix names the reconciled per-document output.
	FinalResultSuffix = "_final_results.json"
)

// Log is an append-only, line-delimited JSON file: the single durable
// source of truth for what batches were submitted for one source document.
// Reads never lock; appends assume a single writer per document.
type Log struct {
	path string
	log  *slog.Logger
}

func OpenLog(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{path: path, log: logger}
}

func (l *Log) Path() string { return l.path }

// Stem returns the document stem the log belongs to ("report_batch_log.jsonl"
// -> "report").
func (l *Log) Stem() string {
	base := filepath.Base(l.path)
	return strings.TrimSuffix(base, LogSuffix)
}

// DebugArtifactPath returns the sibling submission debug artifact path.
func (l *Log) DebugArtifactPath() string {
	return filepath.Join(filepath.Dir(l.path), l.Stem()+DebugArtifactSuffix)
}

// Contents is everything parsed out of one scan of the log. The three line
// shapes are kept as separate streams even though they share the file.
type Contents struct {
	Tracking  []TrackingRecord
	Requests  []RequestRecord
	Responses []ResponseRecord
	Malformed int
}

// logLine is the union of the three line shapes in the log.
type logLine struct {
	BatchRequest  json.RawMessage `json:"batch_request,omitempty"`
	BatchTracking *TrackingRecord `json:"batch_tracking,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	CustomID      string          `json:"custom_id,omitempty"`
	ChunkRange    []int           `json:"chunk_range,omitempty"`
}

// Read scans the log. A malformed line is counted and skipped, never fatal;
// a missing file returns empty contents so callers can fall through to
// recovery.
func (l *Log) Read() (*Contents, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.log.Warn("tracking.log_missing", "path", l.path)
			return &Contents{}, nil
		}
		return nil, fmt.Errorf("open tracking log: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.log.Warn("tracking.log_close_error", "path", l.path, "error", err)
		}
	}()

	c := &Contents{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ll logLine
		if err := json.Unmarshal([]byte(line), &ll); err != nil {
			c.Malformed++
			l.log.Warn("tracking.malformed_line", "path", l.path, "line", lineNo, "error", err)
			continue
		}
		switch {
		case ll.BatchTracking != nil:
			c.Tracking = append(c.Tracking, *ll.BatchTracking)
		case ll.BatchRequest != nil:
			var req RequestRecord
			if err := json.Unmarshal(ll.BatchRequest, &req); err != nil {
				c.Malformed++
				l.log.Warn("tracking.malformed_request", "path", l.path, "line", lineNo, "error", err)
				continue
			}
			c.Requests = append(c.Requests, req)
		case ll.Response != nil:
			c.Responses = append(c.Responses, ResponseRecord{
				CustomID:   ll.CustomID,
				Response:   ll.Response,
				ChunkRange: ll.ChunkRange,
			})
		default:
			c.Malformed++
			l.log.Warn("tracking.unrecognized_line", "path", l.path, "line", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan tracking log: %w", err)
	}
	return c, nil
}

// AppendTracking appends one tracking record and flushes it to disk.
// The log is append-only: existing lines are never rewritten.
func (l *Log) AppendTracking(rec TrackingRecord) error {
	return l.appendLine(logLine{BatchTracking: &rec})
}

// AppendRequest journals an outbound request line.
func (l *Log) AppendRequest(req RequestRecord) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request record: %w", err)
	}
	return l.appendLine(logLine{BatchRequest: raw})
}

func (l *Log) appendLine(ll logLine) error {
	b, err := json.Marshal(ll)
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open tracking log for append: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.log.Warn("tracking.log_close_error", "path", l.path, "error", err)
		}
	}()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("append tracking log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync tracking log: %w", err)
	}
	return nil
}

// FindLogs lists every tracking log under dir, sorted by name.
func FindLogs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tracking dir %s: %w", dir, err)
	}
	var logs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), LogSuffix) {
			continue
		}
		logs = append(logs, filepath.Join(dir, e.Name()))
	}
	return logs, nil
}

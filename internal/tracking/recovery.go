package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/structmine/docbatch/internal/common"
)

// debugArtifact is the redundant list of submitted batch ids written at
// submission time, independent of the main log.
type debugArtifact struct {
	BatchIDs []string `json:"batch_ids"`
}

// RecoverBatchIDs reconstructs tracking records for a log that yielded zero
// batch ids, from the sibling submission debug artifact. Recovery never
// fabricates ids: a missing or empty artifact is a hard stop for this log.
// With persist set, recovered records are appended back into the log so
// future runs do not repeat recovery.
func RecoverBatchIDs(l *Log, persist bool, logger *slog.Logger) ([]TrackingRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := l.DebugArtifactPath()

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Error("recovery.artifact_missing", "log", l.Path(), "artifact", path)
			return nil, fmt.Errorf("no submission debug artifact at %s: %w", path, common.ErrUnrecoverable)
		}
		return nil, fmt.Errorf("read debug artifact: %w", err)
	}

	var art debugArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse debug artifact %s: %w", path, err)
	}
	if len(art.BatchIDs) == 0 {
		logger.Error("recovery.artifact_empty", "log", l.Path(), "artifact", path)
		return nil, fmt.Errorf("debug artifact %s has no batch ids: %w", path, common.ErrUnrecoverable)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	recs := make([]TrackingRecord, 0, len(art.BatchIDs))
	for _, id := range art.BatchIDs {
		recs = append(recs, TrackingRecord{
			BatchID:   id,
			Timestamp: now,
			Recovered: true,
		})
	}

	if persist {
		for _, rec := range recs {
			if err := l.AppendTracking(rec); err != nil {
				return recs, fmt.Errorf("persist recovered record %s: %w", rec.BatchID, err)
			}
		}
		logger.Info("recovery.persisted", "log", l.Path(), "batch_ids", len(recs))
	}

	logger.Info("recovery.ok",
		"log", l.Path(),
		"artifact", path,
		"batch_ids", len(recs),
		"persisted", persist,
	)
	return recs, nil
}

// WriteDebugArtifact writes (or extends) the submission debug artifact with
// the given batch ids. Existing ids are kept; the union is written.
func WriteDebugArtifact(l *Log, batchIDs []string) error {
	path := l.DebugArtifactPath()

	var art debugArtifact
	if raw, err := os.ReadFile(path); err == nil {
		// Tolerate a corrupt artifact: start over rather than fail submission.
		_ = json.Unmarshal(raw, &art)
	}

	seen := make(map[string]struct{}, len(art.BatchIDs))
	for _, id := range art.BatchIDs {
		seen[id] = struct{}{}
	}
	for _, id := range batchIDs {
		if _, ok := seen[id]; !ok {
			art.BatchIDs = append(art.BatchIDs, id)
			seen[id] = struct{}{}
		}
	}

	b, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal debug artifact: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write debug artifact: %w", err)
	}
	return nil
}

package tracking

import (
	"encoding/json"
)

// TrackingRecord is the durable record of one submitted batch. Appended to
// the tracking log once per successful submission and never mutated.
type TrackingRecord struct {
	BatchID   string `json:"batch_id"`
	Timestamp string `json:"timestamp"`
	BatchFile string `json:"batch_file,omitempty"`
	Recovered bool   `json:"recovered,omitempty"`
}

// RequestRecord is one outbound chunk request. CustomID joins the request
// to its eventual response across the whole pipeline.
type RequestRecord struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method,omitempty"`
	URL      string          `json:"url,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// ResponseRecord is one per-request response, either logged locally by the
// synchronous path or retrieved from a completed batch's output file.
type ResponseRecord struct {
	CustomID   string          `json:"custom_id,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Raw        json.RawMessage `json:"raw_response,omitempty"`
	ChunkRange []int           `json:"chunk_range,omitempty"`
}

// FailedBatch records a terminal non-completed batch with its best-effort
// diagnostic explanation.
type FailedBatch struct {
	BatchID    string `json:"batch_id"`
	Status     string `json:"status"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ProcessingMetadata summarizes how complete a reconciled run is.
type ProcessingMetadata struct {
	// FullyCompleted holds only when every tracked batch reached a terminal
	// state, none failed, and every completed batch's output was downloaded.
	// A completed batch whose download failed is counted in MissingBatchIDs
	// instead, so the next run retries the download rather than trusting a
	// partial result.
	FullyCompleted    bool          `json:"fully_completed"`
	CompletedCount    int           `json:"completed_count"`
	FailedCount       int           `json:"failed_count"`
	MissingBatchIDs   []string      `json:"missing_batch_ids"`
	RecoveredBatchIDs []string      `json:"recovered_batch_ids"`
	FailedBatches     []FailedBatch `json:"failed_batches,omitempty"`
	OrderedByCustomID bool          `json:"ordered_by_custom_id"`
	SchemaValidCount  int           `json:"schema_valid_count,omitempty"`
	SchemaInvalidIDs  []string      `json:"schema_invalid_ids,omitempty"`
}

// FinalResult is the per-document reconciled output. Written once at least
// one response is available; a repair run may rewrite it.
type FinalResult struct {
	Responses   []ResponseRecord   `json:"responses"`
	Tracking    []TrackingRecord   `json:"tracking"`
	Metadata    ProcessingMetadata `json:"processing_metadata"`
	CustomIDMap map[string]int     `json:"custom_id_map,omitempty"`
}

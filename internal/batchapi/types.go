package batchapi

// Batch is the remote batch job object as returned by the API.
type Batch struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Endpoint         string         `json:"endpoint"`
	Errors           *BatchErrors   `json:"errors,omitempty"`
	InputFileID      string         `json:"input_file_id"`
	CompletionWindow string         `json:"completion_window"`
	Status           string         `json:"status"`
	OutputFileID     string         `json:"output_file_id,omitempty"`
	ErrorFileID      string         `json:"error_file_id,omitempty"`
	CreatedAt        int64          `json:"created_at"`
	CompletedAt      *int64         `json:"completed_at,omitempty"`
	FailedAt         *int64         `json:"failed_at,omitempty"`
	ExpiredAt        *int64         `json:"expired_at,omitempty"`
	CancelledAt      *int64         `json:"cancelled_at,omitempty"`
	RequestCounts    *RequestCounts `json:"request_counts,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// BatchErrors holds batch-level error details.
type BatchErrors struct {
	Object string       `json:"object"`
	Data   []BatchError `json:"data"`
}

// BatchError represents a single batch-level error.
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Line    *int   `json:"line,omitempty"`
}

// RequestCounts holds per-batch request counts.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// File is the uploaded-file object returned by the files endpoint.
type File struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Bytes    int64  `json:"bytes"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

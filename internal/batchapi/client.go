package batchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
)

// Config holds remote batch API client configuration.
type Config struct {
	BaseURL          string
	APIKey           string
	Endpoint         string // endpoint path recorded on each batch job
	CompletionWindow string
	Timeout          time.Duration
	Retry            RetryPolicy
}

// Client talks to the remote asynchronous batch API: upload a request file,
// create a batch referencing it, fetch status by id, fetch file content.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/v1/chat/completions"
	}
	if cfg.CompletionWindow == "" {
		cfg.CompletionWindow = "24h"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy(5)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// UploadBatchFile uploads newline-delimited JSON request content with
// purpose=batch and returns the remote file id.
func (c *Client) UploadBatchFile(ctx context.Context, filename string, content []byte) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	var f File
	err := WithRetry(ctx, c.cfg.Retry, c.log, "files.upload", func() error {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("purpose", "batch"); err != nil {
			return fmt.Errorf("write purpose field: %w", err)
		}
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(content); err != nil {
			return fmt.Errorf("write file content: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("close multipart: %w", err)
		}
		raw, err := c.do(ctx, http.MethodPost, c.url("/files"), &body, mw.FormDataContentType())
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &f)
	})
	if err != nil {
		c.log.Error("batchapi.upload.failed",
			"req_id", rid, "filename", filename, "bytes", len(content),
			"error", err, "elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("upload batch file: %w", err)
	}

	c.log.Info("batchapi.upload.ok",
		"req_id", rid, "filename", filename, "bytes", len(content),
		"file_id", f.ID, "elapsed_ms", time.Since(start).Milliseconds(),
	)
	return f.ID, nil
}

// CreateBatch creates a batch job over an uploaded request file.
func (c *Client) CreateBatch(ctx context.Context, inputFileID string) (*Batch, error) {
	rid := uuid.New().String()
	start := time.Now()

	payload := map[string]any{
		"input_file_id":     inputFileID,
		"endpoint":          c.cfg.Endpoint,
		"completion_window": c.cfg.CompletionWindow,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal create batch: %w", err)
	}

	var batch Batch
	err = WithRetry(ctx, c.cfg.Retry, c.log, "batches.create", func() error {
		raw, err := c.do(ctx, http.MethodPost, c.url("/batches"), bytes.NewReader(b), "application/json")
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &batch)
	})
	if err != nil {
		c.log.Error("batchapi.create.failed",
			"req_id", rid, "input_file_id", inputFileID,
			"error", err, "elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("create batch: %w", err)
	}

	c.log.Info("batchapi.create.ok",
		"req_id", rid, "input_file_id", inputFileID,
		"batch_id", batch.ID, "status", batch.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &batch, nil
}

// GetBatch fetches the batch object by id.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	var batch Batch
	err := WithRetry(ctx, c.cfg.Retry, c.log, "batches.get", func() error {
		raw, err := c.do(ctx, http.MethodGet, c.url("/batches/"+batchID), nil, "")
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &batch)
	})
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return &batch, nil
}

// FileContent downloads the raw bytes of a remote file (output or error
// file of a finished batch), decoded upstream as UTF-8 NDJSON.
func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	var raw []byte
	err := WithRetry(ctx, c.cfg.Retry, c.log, "files.content", func() error {
		var err error
		raw, err = c.do(ctx, http.MethodGet, c.url("/files/"+fileID+"/content"), nil, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("file content %s: %w", fileID, err)
	}
	return raw, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("batchapi.body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		// A connection cut mid-body must surface as a failed call, not a
		// short read passing for success. Transient, so WithRetry retries.
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 2048 {
			msg = msg[:2048]
		}
		return nil, &apiError{status: resp.StatusCode, msg: msg}
	}
	return raw, nil
}

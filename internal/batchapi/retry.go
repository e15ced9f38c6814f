package batchapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"time"
)

// RetryPolicy is a data-driven description of how to retry a remote call.
// Keeping it as plain data lets the backoff math be tested apart from I/O.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay randomized in [1-j, 1+j]
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient remote errors (timeouts, 429, 5xx)
// with exponential backoff. Non-transient 4xx errors are never retried.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.25,
		Retryable:   IsTransient,
	}
}

// Delay returns the backoff delay before the given attempt (0-based retry
// count), capped at MaxDelay, with jitter applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		f := 1 + p.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}

// WithRetry runs fn under the policy, sleeping between attempts. It returns
// the last error once attempts are exhausted or a non-retryable error occurs.
func WithRetry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if policy.Retryable == nil || !policy.Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		delay := policy.Delay(attempt)
		logger.Warn("batchapi.retry",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// apiError carries the upstream HTTP status so the retry predicate can
// separate transient from terminal failures.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("batch api status %d: %s", e.status, e.msg)
}

// IsTransient classifies an error as worth retrying: request timeouts,
// truncated response bodies, 429 rate limits and 5xx upstream errors.
// Context cancellation and other 4xx responses are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == 429 || ae.status == 408 || ae.status/100 == 5
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// StatusOf extracts the upstream HTTP status from an error, 0 if absent.
func StatusOf(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status
	}
	return 0
}

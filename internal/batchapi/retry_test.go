package batchapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&apiError{status: 429}))
	assert.True(t, IsTransient(&apiError{status: 500}))
	assert.True(t, IsTransient(&apiError{status: 503}))
	assert.True(t, IsTransient(&apiError{status: 408}))
	assert.True(t, IsTransient(io.ErrUnexpectedEOF))
	assert.True(t, IsTransient(fmt.Errorf("read response body: %w", io.ErrUnexpectedEOF)))

	assert.False(t, IsTransient(&apiError{status: 400}))
	assert.False(t, IsTransient(&apiError{status: 401}))
	assert.False(t, IsTransient(&apiError{status: 404}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}

func TestDelayIsCappedAndJittered(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.25}
	for attempt := 0; attempt < 20; attempt++ {
		d := p.Delay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*1.25))
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: IsTransient}
	calls := 0
	err := WithRetry(context.Background(), policy, nil, "test", func() error {
		calls++
		return &apiError{status: 400, msg: "bad request"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestWithRetryExhaustsTransient(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: IsTransient}
	calls := 0
	err := WithRetry(context.Background(), policy, nil, "test", func() error {
		calls++
		return &apiError{status: 503, msg: "unavailable"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 503, StatusOf(err))
}

func TestWithRetryEventualSuccess(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: IsTransient}
	calls := 0
	err := WithRetry(context.Background(), policy, nil, "test", func() error {
		calls++
		if calls < 3 {
			return &apiError{status: 429, msg: "slow down"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute, Retryable: IsTransient}
	err := WithRetry(ctx, policy, nil, "test", func() error {
		return &apiError{status: 500, msg: "boom"}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

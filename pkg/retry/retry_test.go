package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
)

func fastConfig(maxRetries int) Config {
	cfg := TriggerConfig(maxRetries)
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestDoWithResult_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")

	_, err := DoWithResult(context.Background(), fastConfig(0), "test", func() (int, error) {
		calls++
		return 0, boom
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, boom, err)
}

func TestDoWithResult_RetriesTransientFailures(t *testing.T) {
	calls := 0

	got, err := DoWithResult(context.Background(), fastConfig(3), "test", func() (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.RejectedError(503, nil)
		}
		return "queued", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "queued", got)
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0

	_, err := DoWithResult(context.Background(), fastConfig(3), "test", func() (int, error) {
		calls++
		return 0, apperrors.RejectedError(401, []byte("bad token"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestDoWithResult_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0

	_, err := DoWithResult(context.Background(), fastConfig(2), "test", func() (int, error) {
		calls++
		return 0, apperrors.RejectedError(500, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "operation failed after 2 retries")
	assert.True(t, apperrors.Is(err, apperrors.ErrTriggerRejected))
}

func TestDoWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := DoWithResult(ctx, fastConfig(3), "test", func() (int, error) {
		calls++
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "transport error", err: errors.New("dial tcp: connection refused"), expected: true},
		{name: "server error", err: apperrors.RejectedError(502, nil), expected: true},
		{name: "client error", err: apperrors.RejectedError(400, nil), expected: false},
		{name: "cancelled", err: fmt.Errorf("post: %w", context.Canceled), expected: false},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestCalculateDelay_CappedAtMax(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(5, cfg))
}

package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfscan/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(retries int) Config {
	return Config{
		RetryCount:     retries,
		AttemptTimeout: 100 * time.Millisecond,
		BackoffBase:    time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), testLogger(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", apperr.External(503, "upstream unavailable", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), testLogger(), fastConfig(3), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestDoFatalErrorAbortsImmediately(t *testing.T) {
	calls := 0
	fatal := apperr.Validation("bad input")
	_, err := Do(context.Background(), testLogger(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDoExtractionErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testLogger(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", apperr.Extraction("no JSON found in reply", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoUpstream4xxNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testLogger(), fastConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", apperr.External(400, "bad request to model", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustionAnnotatesAttemptCount(t *testing.T) {
	calls := 0
	last := apperr.External(429, "rate limited", nil)
	_, err := Do(context.Background(), testLogger(), fastConfig(2), func(ctx context.Context) (string, error) {
		calls++
		return "", last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.ErrorIs(t, err, last)
}

func TestDoAttemptTimeoutIsRetryable(t *testing.T) {
	calls := 0
	cfg := Config{
		RetryCount:     1,
		AttemptTimeout: 20 * time.Millisecond,
		BackoffBase:    time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
	result, err := Do(context.Background(), testLogger(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 2, calls)
}

func TestDoParentCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, testLogger(), fastConfig(5), func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", apperr.External(500, "boom", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := Config{BackoffBase: 10 * time.Millisecond, BackoffMax: 35 * time.Millisecond}

	d0 := backoff(cfg, 0)
	assert.GreaterOrEqual(t, d0, 10*time.Millisecond)
	assert.Less(t, d0, 12*time.Millisecond)

	d1 := backoff(cfg, 1)
	assert.GreaterOrEqual(t, d1, 20*time.Millisecond)

	d4 := backoff(cfg, 4)
	assert.LessOrEqual(t, d4, 35*time.Millisecond+4*time.Millisecond)
}

func TestDoZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testLogger(), fastConfig(0), func(ctx context.Context) (string, error) {
		calls++
		return "", apperr.External(500, "boom", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}

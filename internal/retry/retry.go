// Package retry runs operations with per-attempt timeouts and exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/openshelf/shelfscan/internal/apperr"
)

// Config controls the retry loop. RetryCount is the number of retries after
// the first attempt, so an operation runs at most RetryCount+1 times.
type Config struct {
	RetryCount     int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts all
// attempts, or the parent context is cancelled. Each attempt gets its own
// timeout derived from ctx.
func Do[T any](ctx context.Context, log *slog.Logger, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoff(cfg, attempt-1)
			log.Warn("retrying after failure",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := runAttempt(ctx, cfg.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !apperr.Retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := op(attemptCtx)
	if err != nil {
		// A deadline on the attempt context only, not the parent, counts as a
		// retryable upstream timeout.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return zero, apperr.External(0, "attempt timed out", err)
		}
		return zero, err
	}
	return result, nil
}

// backoff computes base*2^n capped at max, with up to 10% jitter added so
// concurrent workers do not retry in lockstep.
func backoff(cfg Config, n int) time.Duration {
	base := cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(n)
	if cfg.BackoffMax > 0 && d > cfg.BackoffMax {
		d = cfg.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1))
	return d + jitter
}

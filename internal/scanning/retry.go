package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy defines retry behavior for provider calls
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry is called before each backoff wait with the zero-based index of
	// the attempt that just failed
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy allows three attempts with a one second base delay
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// IsRetryable reports whether err is a transport or server failure worth retrying.
// Encoding and validation errors never are.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && transportErr.Retryable()
}

// Retry runs op until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Attempt n (counted from 0) is followed by a wait of
// BaseDelay * 2^n. When every attempt fails the last error is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := policy.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryPolicy().BaseDelay
	}

	var (
		result  T
		lastErr error
		tries   int
	)

	exponential := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(baseDelay))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := exponential.Next()
		if !stop {
			slog.Warn("Retrying provider call", "attempt", tries, "max_attempts", maxAttempts, "delay", delay, "error", lastErr)
			if policy.OnRetry != nil {
				policy.OnRetry(tries-1, delay, lastErr)
			}
		}
		return delay, stop
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		v, err := op(ctx)
		if err != nil {
			lastErr = err
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		// retry.Do reports cancellation during a backoff wait as the bare context error
		if ctxErr := ctx.Err(); ctxErr != nil && (err == ctxErr || lastErr == nil) {
			return zero, ctxErr
		}
		return zero, lastErr
	}
	return result, nil
}

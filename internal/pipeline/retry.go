package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/yegors/co-atis/internal/ai"
)

// maxStageAttempts is the first call plus one retry
const maxStageAttempts = 2

// retryable reports whether a stage failure is worth a second attempt.
// Only transient AI service failures qualify.
func retryable(err error) bool {
	return errors.Is(err, ai.ErrServiceUnavailable)
}

// withRetry runs fn, retrying once after delay when the failure is
// retryable. onRetry is called before the second attempt.
func withRetry[T any](ctx context.Context, delay time.Duration, fn func(context.Context) (T, error), onRetry func(err error, wait time.Duration)) (T, error) {
	operation := func() (T, error) {
		result, err := fn(ctx)
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(maxStageAttempts),
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(onRetry))
	}

	return backoff.Retry(ctx, operation, opts...)
}

package common

import (
	"context"
	"log/slog"
	"time"

	"fechamento/internal/service"
)

// Retry executes an operation under the fixed-delay retry policy. A
// failing operation is re-invoked up to opts.MaxAttempts additional
// times (MaxAttempts+1 total calls) with opts.Delay between calls. The
// last failure is returned unmodified so callers can inspect the
// original cause. Validation errors are never retried.
//
// The executor performs no deduplication; wrapped operations must be
// safe to invoke more than once.
func Retry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.Delay <= 0 {
		opts.Delay = 100 * time.Millisecond
	}

	var lastErr error
	totalCalls := opts.MaxAttempts + 1

	for attempt := 1; attempt <= totalCalls; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if IsValidation(lastErr) {
			return lastErr
		}
		if attempt == totalCalls {
			break
		}

		slog.Warn("operation failed, retrying",
			"attempt", attempt,
			"total_calls", totalCalls,
			"delay", opts.Delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Delay):
		}
	}

	return lastErr
}

// RetryValue is Retry for operations that produce a value. On exhausted
// attempts the zero value and the last failure are returned.
func RetryValue[T any](ctx context.Context, operation func() (T, error), opts service.RetryOptions) (T, error) {
	var result T
	err := Retry(ctx, func() error {
		var opErr error
		result, opErr = operation()
		return opErr
	}, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

package ai

import (
	"context"
	"errors"
	"time"
)

// Retry calls fn until it succeeds, returns a fatal error, or opts.MaxRetry
// attempts are exhausted. A recoverable error is retried after
// opts.RetryInterval; any other error (including ErrFatal) ends the loop
// immediately. A context.Canceled error is returned as is; otherwise the
// last error is wrapped in APIConnectionError carrying the number of
// attempts made, matching spec.md §7's "after max_retry attempts, a
// terminal error is raised".
func Retry(ctx context.Context, provider string, opts APIConnectOptions, fn func(ctx context.Context) error) error {
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 1
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= opts.MaxRetry; attempt++ {
		attempts = attempt
		callCtx := ctx
		var cancel context.CancelFunc
		if opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		err := fn(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
		if !IsRecoverable(err) || attempt == opts.MaxRetry {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
	return &APIConnectionError{Provider: provider, Attempts: attempts, Cause: lastErr}
}

package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// DoWithRetry executes fn up to attempts times with exponential backoff.
// It stops early if the context is canceled.
func DoWithRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	return DoIf(ctx, attempts, baseDelay, func(error) bool { return true }, fn)
}

// DoIf is DoWithRetry that gives up as soon as retryable reports false.
// The returned error is the last one fn produced.
func DoIf(ctx context.Context, attempts int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	return retrygo.Do(fn,
		retrygo.Context(ctx),
		retrygo.Attempts(uint(attempts)),
		retrygo.Delay(baseDelay),
		retrygo.DelayType(retrygo.BackOffDelay),
		retrygo.RetryIf(retryable),
		retrygo.LastErrorOnly(true),
	)
}

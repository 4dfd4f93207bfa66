package logger

import (
	"context"
	"sync/atomic"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// attemptCounterKey is the context key for tracking send attempts per logical request
	attemptCounterKey contextKey = "attempt_counter"
	// retryCounterKey is the context key for tracking retries per logical request
	retryCounterKey contextKey = "retry_counter"
)

// WithAttemptCounter creates a new context with attempt and retry counters
func WithAttemptCounter(ctx context.Context) context.Context {
	attempts := int64(0)
	retries := int64(0)
	ctx = context.WithValue(ctx, attemptCounterKey, &attempts)
	ctx = context.WithValue(ctx, retryCounterKey, &retries)
	return ctx
}

// IncrementAttempt increments the attempt counter in the context
func IncrementAttempt(ctx context.Context) {
	if counter, ok := ctx.Value(attemptCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetAttempts returns the number of attempts recorded in the context
func GetAttempts(ctx context.Context) int64 {
	if counter, ok := ctx.Value(attemptCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// IncrementRetry increments the retry counter in the context
func IncrementRetry(ctx context.Context) {
	if counter, ok := ctx.Value(retryCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetRetries returns the number of retries recorded in the context
func GetRetries(ctx context.Context) int64 {
	if counter, ok := ctx.Value(retryCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}

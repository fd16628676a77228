// Package retry provides retry with exponential backoff for the transient
// failures vertad sees talking to the node, Kafka, and the stores.
// Retryability is decided by the error's classification in pkg/errors, so
// consensus and validation failures are never retried.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/vertachain/vertad/pkg/errors"
)

// Config controls the backoff schedule of one retried operation.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultConfig returns the schedule used when callers pass nil.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NetworkConfig returns the schedule for node RPC and Kafka calls: more
// attempts, short delays, since block notifications go stale quickly.
func NetworkConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// DatabaseConfig returns the schedule for Postgres, Redis, and Influx
// writes, where a longer pause gives a failed-over backend time to come
// back.
func DatabaseConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// RetryableFunc is the operation under retry.
type RetryableFunc func() error

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or the context ends. The final failure comes
// back wrapped with the attempt count.
func Do(ctx context.Context, config *Config, fn RetryableFunc) error {
	_, err := DoWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for operations that produce a value. On failure the
// zero value is returned alongside the error.
func DoWithResult[T any](ctx context.Context, config *Config, fn func() (T, error)) (T, error) {
	var zero T
	if config == nil {
		config = DefaultConfig()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(config.delayFor(attempt)):
		}
	}

	return zero, errors.Wrap(lastErr, errors.ErrorTypeInternal, "retry",
		"operation failed after maximum retry attempts").
		WithContext("max_attempts", config.MaxAttempts)
}

// delayFor computes the backoff before the attempt after the given one,
// capped at MaxDelay, with up to 10% random jitter to spread reconnect
// storms.
func (c *Config) delayFor(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	delay = min(delay, float64(c.MaxDelay))
	if c.Jitter {
		delay += delay * 0.1 * rand.Float64()
	}
	return time.Duration(delay)
}

package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted is returned when MaxAttempts checks ran without the
// condition being met.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollConfig bounds a wait-then-check loop. The interval is fixed; there is
// no backoff and no retry of failed checks.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// Timeout caps each individual check. Zero means no per-check deadline.
	Timeout time.Duration
}

// DefaultPollConfig checks once per second for up to ten minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    time.Second,
		MaxAttempts: 600,
		Timeout:     30 * time.Second,
	}
}

// PollFunc performs one check. done reports whether the caller can stop
// waiting. attempt starts at 1.
type PollFunc[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Poll sleeps Interval and then runs check, until check reports done, returns
// an error, MaxAttempts is reached, or ctx ends. A failing check is fatal and
// its error is returned as is. The number of checks performed is returned in
// every case.
func Poll[T any](ctx context.Context, config PollConfig, check PollFunc[T]) (T, int, error) {
	var last T

	timer := time.NewTimer(config.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(config.Interval)
		}

		select {
		case <-timer.C:
		case <-ctx.Done():
			return last, attempt - 1, ctx.Err()
		}

		checkCtx, cancel := ctx, context.CancelFunc(func() {})
		if config.Timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		}
		value, done, err := check(checkCtx, attempt)
		cancel()

		if err != nil {
			return value, attempt, err
		}
		last = value
		if done {
			return value, attempt, nil
		}
	}

	return last, config.MaxAttempts, ErrPollExhausted
}

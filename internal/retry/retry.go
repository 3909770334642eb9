// Package retry runs an operation until it succeeds or its attempt budget
// is exhausted.
package retry

import (
	"context"
	"errors"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how many times to try and how long to wait after a
// failed attempt. The wait is also applied after the final failed attempt.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration

	// Sleep defaults to a timer-based wait.
	Sleep SleepFunc
}

// Linear returns a backoff of step × attempt.
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Result describes what Do spent.
type Result struct {
	Attempts int
	Delays   []time.Duration
	LastErr  error
}

var ErrInvalidPolicy = errors.New("retry: max attempts must be positive")

// Do calls fn with attempt numbers starting at 1 until it returns a nil
// error or the policy is exhausted. The error returned is the last error
// from fn, or the context error if the wait was interrupted.
func Do[T any](
	ctx context.Context,
	p Policy,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, Result, error) {

	var (
		zero T
		res  Result
	)

	if p.MaxAttempts < 1 {
		return zero, res, ErrInvalidPolicy
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.LastErr = err
			return zero, res, err
		}

		res.Attempts = attempt

		v, err := fn(ctx, attempt)
		if err == nil {
			res.LastErr = nil
			return v, res, nil
		}
		res.LastErr = err

		if p.Backoff == nil {
			continue
		}

		d := p.Backoff(attempt)
		if d <= 0 {
			continue
		}
		res.Delays = append(res.Delays, d)
		if err := sleep(ctx, d); err != nil {
			res.LastErr = err
			return zero, res, err
		}
	}

	return zero, res, res.LastErr
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

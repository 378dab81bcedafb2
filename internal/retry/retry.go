// Package retry runs an operation with a fixed delay between attempts, a bounded number of times or until cancelled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Timer waits between attempts.
type Timer = backoff.Timer

// Unbounded retries until ctx is done.
const Unbounded = -1

// Policy describes how many retries follow the first attempt and how far apart they are.
type Policy struct {
	// Retries is the number of retries after the first attempt; Unbounded
	// (any negative value) keeps retrying until ctx is done.
	Retries int
	Delay   time.Duration
	// Timer is used to wait between attempts. Nil means a real timer.
	Timer Timer
	// OnRetry is called before each wait with the failed attempt's error.
	OnRetry func(err error, wait time.Duration)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, ctx is done or
// Policy.Retries retries have failed (never, for Unbounded). The last case
// yields an error wrapping ErrExhausted and the final attempt's error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	var (
		stopped bool
		lastErr error
	)
	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) {
			stopped = true
			return backoff.Permanent(perm.err)
		}
		return err
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	if p.Retries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(p.Retries))
	}
	b := backoff.WithContext(policy, ctx)

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, p.Timer)
	switch {
	case err == nil:
		return nil
	case stopped:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
}

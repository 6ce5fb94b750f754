// Package retry runs an operation under a bounded attempt budget with a
// fixed delay schedule. Errors wrapped with Permanent stop the loop.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds an operation to MaxAttempts calls. Delay returns the wait
// after the given (1-based) failed attempt.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// Linear waits step, 2*step, 3*step, ... between attempts.
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Constant waits d between attempts.
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return d
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, the attempt
// budget is spent, or ctx is done. notify, if set, is called before each wait.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify func(err error, wait time.Duration)) error {
	attempt := 0
	operation := func() error {
		attempt++
		return op(ctx, attempt)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(&schedule{policy: p}, ctx), notify)
}

// schedule adapts Policy to backoff.BackOff.
type schedule struct {
	policy  Policy
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	if s.attempt >= s.policy.MaxAttempts {
		return backoff.Stop
	}
	if s.policy.Delay == nil {
		return 0
	}
	return s.policy.Delay(s.attempt)
}

func (s *schedule) Reset() {
	s.attempt = 0
}

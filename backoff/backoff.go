// Package backoff provides a small, reusable retry policy: a bounded
// number of attempts with exponentially growing delay between them.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Policy executes a fallible operation up to MaxAttempts times, sleeping
// between failed attempts. Delays grow geometrically: BaseDelay,
// BaseDelay*Multiplier, and so on. Only delays between attempts are
// applied, so MaxAttempts of 3 sleeps exactly twice.
//
// The policy knows nothing about the operation it runs; callers decide
// which failures are worth retrying by choosing what to run under it.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int

	// Clock defaults to the real clock. Tests inject a fake.
	Clock clockwork.Clock
}

// Default returns the connection-establishment policy: 3 attempts with
// delays of 1s and 2s between them.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Permanent marks an error as not worth retrying. Run returns the wrapped
// error immediately, skipping any remaining attempts. Used for failures
// where the server understood the request and rejected it: retrying a
// logically rejected request rarely helps and risks duplicate side
// effects.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Run executes op until it succeeds, attempts are exhausted, or ctx is
// canceled during a sleep. The last failure is wrapped in the returned
// error once all attempts are spent. Errors marked with Permanent are
// surfaced immediately without further attempts.
func (p Policy) Run(ctx context.Context, op func(context.Context) error) error {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("backoff canceled after attempt %d: %w", attempt, ctx.Err())
		case <-clock.After(delay):
		}
		delay *= time.Duration(multiplier)
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

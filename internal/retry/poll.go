package retry

import (
	"context"
	"errors"
	"time"
)

// DeadlineError reports that a poll loop gave up before the condition held.
// It is distinct from the condition's own errors so callers can surface
// "still pending, check later" separately from hard failures.
type DeadlineError struct {
	Waited   time.Duration
	Attempts int
}

func (e *DeadlineError) Error() string {
	return "poll deadline exceeded after " + e.Waited.Truncate(time.Millisecond).String()
}

// IsDeadline returns true if the error is, or wraps, a poll DeadlineError.
func IsDeadline(err error) bool {
	var de *DeadlineError
	return errors.As(err, &de)
}

// Poll repeatedly invokes fn until it reports done, backing off per policy and
// bounded by an overall deadline. A positive MaxRetries on the policy also
// caps the attempts. fn returning an error stops the loop immediately; running
// out of time or attempts yields a DeadlineError. Cancellation via ctx is
// honored between attempts.
func Poll(ctx context.Context, p Policy, deadline time.Duration, fn func(context.Context) (done bool, err error)) error {
	if err := p.Validate(); err != nil {
		return err
	}

	start := time.Now()
	attempts := 0
	for {
		attempts++
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if p.MaxRetries > 0 && attempts > p.MaxRetries {
			return &DeadlineError{Waited: time.Since(start), Attempts: attempts}
		}

		delay := p.Delay(attempts)
		if time.Since(start)+delay > deadline {
			return &DeadlineError{Waited: time.Since(start), Attempts: attempts}
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

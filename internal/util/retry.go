package util

import (
	"context"
	"time"
)

// RetryPolicy describes how an operation is retried. A zero Backoff keeps the
// delay constant; Backoff 2 doubles it after every failed attempt.
// Retryable, when set, decides whether an error is worth another attempt;
// errors it rejects are returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64
	Retryable   func(error) bool
}

// Do calls fn until it succeeds, the policy is exhausted, or ctx is done. It
// returns nil on the first successful call, otherwise the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.Delay

	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		// Don't sleep after the last failed attempt.
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if p.Backoff > 1 {
				delay = time.Duration(float64(delay) * p.Backoff)
			}
		}
	}

	return err
}

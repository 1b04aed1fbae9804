// Package retry provides a bounded-retry policy with exponential backoff.
// The sleep function is injectable so callers can test schedules without
// real delays.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The zero value is a single attempt with no backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts. Values <= 0 mean 1.
	MaxAttempts int

	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration

	// Multiplier scales the backoff after each attempt. Values <= 1 keep a
	// constant delay.
	Multiplier float64

	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries everything.
	Retryable func(error) bool

	// Sleep is called between attempts. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Do runs op until it succeeds, exhausts attempts, fails a Retryable check,
// or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	backoff := p.InitialBackoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if i < attempts-1 && backoff > 0 {
			sleep(backoff)
			if p.Multiplier > 1 {
				backoff = time.Duration(float64(backoff) * p.Multiplier)
			}
		}
	}
	return lastErr
}

package util

import (
	"context"
	"time"
)

// Retry invokes fn until it succeeds, up to maxAttempts times, doubling the
// delay between attempts starting from baseDelay. The error from the final
// attempt is returned when every attempt fails. Cancelling the context aborts
// the wait between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// No sleep after the final attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}

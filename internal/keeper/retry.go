package keeper

import (
	"context"
	"time"
)

// maxRetryDelay caps the doubling backoff so a long retry budget does not
// stretch a single cycle past the keeper interval by hours.
const maxRetryDelay = 30 * time.Second

// withRetry runs fn until it succeeds or the retry budget is spent, backing
// off exponentially between attempts. The last error is returned unwrapped so
// callers can match it with errors.Is.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		delay := baseDelay << uint(attempt)
		if delay <= 0 || delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

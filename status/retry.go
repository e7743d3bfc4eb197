package status

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRetryBackoff is the delay before the first retry; it doubles
// on each subsequent one.
const DefaultRetryBackoff = 500 * time.Millisecond

// PermanentError marks a publish failure that must not be retried
// (e.g. a 4xx response from a webhook endpoint).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// Retry runs fn up to 1+retries times with doubling backoff, starting
// from initial. It stops early on context cancellation or when fn
// returns a *PermanentError.
func Retry(ctx context.Context, retries int, initial time.Duration, fn func() error) error {
	if initial <= 0 {
		initial = DefaultRetryBackoff
	}

	var lastErr error
	attempts := 1 + retries
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(initial << uint(i-1)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.Err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

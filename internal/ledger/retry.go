package ledger

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn until it succeeds, fails with a non-transient error, or
// attempts are exhausted. The wait doubles after every transient failure.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(delay << i)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted: %w", err)
		case <-t.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

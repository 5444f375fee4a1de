package store

import (
	"log"
	"time"
)

// maxAttempts is the total attempt budget for transient failures.
const maxAttempts = 3

// WithRetry executes op, retrying transient failures up to maxAttempts
// total attempts. Any other error propagates on first failure.
func WithRetry(op func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt < maxAttempts {
			log.Printf("store: transient error (attempt %d/%d), retrying: %v", attempt, maxAttempts, err)
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
	}
	return err
}

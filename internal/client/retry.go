package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/NamanBalaji/btcore/internal/errors"
	"github.com/NamanBalaji/btcore/internal/logger"
)

const maxBackoff = 2 * time.Minute

// retry runs fn up to attempts times, waiting with exponential backoff
// between tries. Only errors classified as retryable are retried.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, resource string, fn func() error) error {
	var err error

	for attempt := range attempts {
		if err = fn(); err == nil {
			return nil
		}

		de := errors.Classify(err, resource)
		if !de.Retryable || attempt == attempts-1 {
			return de
		}

		backoff := calculateBackoff(attempt, baseDelay)
		logger.Debugf("Waiting %v before retrying %s (attempt %d/%d): %v", backoff, resource, attempt+2, attempts, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return errors.NewContextError(ctx.Err(), resource)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", resource, attempts, err)
}

// calculateBackoff calculates a backoff duration with jitter.
func calculateBackoff(retryCount int, baseDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << uint(retryCount))

	jitterFactor := 0.75 + 0.5*rand.Float64()
	jitter := time.Duration(float64(delay) * jitterFactor)

	if jitter > maxBackoff {
		jitter = maxBackoff
	}

	return jitter
}

package fetch

import (
	"context"
	"math/rand"
	"time"
)

const maxBackoff = 2 * time.Minute

// calculateBackoff returns baseDelay*2^retryCount with +/-10% jitter, capped
// at two minutes.
func calculateBackoff(retryCount int, baseDelay time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	if retryCount > 16 {
		retryCount = 16
	}

	delay := baseDelay * (1 << uint(retryCount))

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.2)
	finalDelay := delay + jitter - time.Duration(float64(delay)*0.1)

	if finalDelay > maxBackoff {
		finalDelay = maxBackoff
	}

	return finalDelay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

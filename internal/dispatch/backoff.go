package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryDelay computes the jittered exponential delay before re-enqueuing a
// job whose Nth attempt (1-based) just failed: base doubling per attempt,
// never exceeding ceiling.
func RetryDelay(base, ceiling time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = ceiling
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}

	// Jitter is applied after the interval cap; the ceiling is a hard bound.
	if delay > ceiling {
		delay = ceiling
	}
	return delay
}

package dispatch

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// BreakerConfig tunes the per-category circuit breakers.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	Threshold uint32
	// Cooldown is how long the breaker stays open before allowing a single
	// half-open trial call.
	Cooldown time.Duration
}

// Breaker holds one circuit breaker per category, shared by every dispatcher
// goroutine. A stalled downstream worker trips its category open so the
// backlog stops hammering it; a half-open trial probes for recovery.
//
// Admission is two-step: callers Acquire a slot before touching the job, so
// a rejected entry can be deferred without any state having changed.
type Breaker struct {
	breakers map[domain.Category]*gobreaker.TwoStepCircuitBreaker
}

// NewBreaker creates breakers for every known category.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	breakers := make(map[domain.Category]*gobreaker.TwoStepCircuitBreaker, len(domain.Categories()))
	for _, category := range domain.Categories() {
		breakers[category] = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        "worker-" + string(category),
			MaxRequests: 1,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
	return &Breaker{breakers: breakers}
}

// Open reports whether the category's breaker currently refuses calls.
func (b *Breaker) Open(category domain.Category) bool {
	return b.breakers[category].State() == gobreaker.StateOpen
}

// Acquire asks the category's breaker to admit one worker call. On success it
// returns a release callback the caller must invoke with the call's outcome.
// A non-nil error means the breaker is open, or another goroutine already
// holds the half-open trial slot; no call may be made.
func (b *Breaker) Acquire(category domain.Category) (func(success bool), error) {
	return b.breakers[category].Allow()
}

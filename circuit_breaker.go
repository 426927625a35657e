package kt

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerSettings returns breaker settings for common use cases:
// the breaker opens when at least 60% of 3 or more calls in an interval
// failed, and lets maxRequests calls through after timeout to probe.
func NewCircuitBreakerSettings(name string, maxRequests uint32, interval, timeout time.Duration) *gobreaker.Settings {
	return &gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

func newCircuitBreaker(settings gobreaker.Settings) *gobreaker.CircuitBreaker[*Response] {
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = isBreakerSuccess
	}
	return gobreaker.NewCircuitBreaker[*Response](settings)
}

// isBreakerSuccess counts only failures that say something about the server.
// A caller giving up, a deadline that passed before anything was sent, or a
// rejected argument does not.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrInvalidArgument) ||
		(errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrOutcomeUnknown))
}

// BreakerState returns the circuit breaker state, or StateClosed when no
// breaker is configured.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

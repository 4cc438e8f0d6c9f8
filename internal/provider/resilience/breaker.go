// Package resilience wraps calls to the external routing, geocoding, feature
// and weather providers with circuit breakers, timeouts, retries and health
// bookkeeping.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerPolicy decides when a provider's breaker opens. Zero fields take
// the value from DefaultBreakerPolicy.
type BreakerPolicy struct {
	// MinRequests is how many calls the breaker must see before it may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once failures/requests reaches it.
	// A ratio above 1 never trips.
	FailureRatio float64
	// OpenFor is how long calls are refused before a half-open probe.
	OpenFor time.Duration
	// Probes is how many calls are let through while half-open.
	Probes uint32
}

// DefaultBreakerPolicy trips after 5 calls of which half failed and probes
// again after a minute.
func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		MinRequests:  5,
		FailureRatio: 0.5,
		OpenFor:      time.Minute,
		Probes:       1,
	}
}

func (p BreakerPolicy) withDefaults() BreakerPolicy {
	d := DefaultBreakerPolicy()
	if p.MinRequests == 0 {
		p.MinRequests = d.MinRequests
	}
	if p.FailureRatio <= 0 {
		p.FailureRatio = d.FailureRatio
	}
	if p.OpenFor <= 0 {
		p.OpenFor = d.OpenFor
	}
	if p.Probes == 0 {
		p.Probes = d.Probes
	}
	return p
}

// ShouldTrip reports whether counts open the breaker under p.
func (p BreakerPolicy) ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

func newBreaker[T any](name string, p BreakerPolicy, logger zerolog.Logger) *gobreaker.CircuitBreaker[T] {
	p = p.withDefaults()
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: p.Probes,
		Timeout:     p.OpenFor,
		ReadyToTrip: p.ShouldTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Stringer("from", from).
				Stringer("to", to).
				Msg("provider circuit breaker changed state")
		},
	})
}

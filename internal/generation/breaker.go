// Package generation produces the outbound reply for a turn: contract-bound
// model calls wrapped in validation, correction retries, a circuit breaker,
// and state-specific fallbacks.
package generation

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's lifecycle state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	defaultErrorThreshold = 3
	defaultFailureWindow  = 60 * time.Second
	defaultHalfOpenAfter  = 120 * time.Second
)

// CircuitBreaker rate-limits calls to a failing backend. It opens after
// errorThreshold failures inside the rolling window, fast-fails while open,
// and lets one probe through per halfOpenAfter interval. Shared across
// concurrent sessions, so every transition is mutex-guarded.
type CircuitBreaker struct {
	mu             sync.Mutex
	state          BreakerState
	failureCount   int
	lastFailure    time.Time
	errorThreshold int
	failureWindow  time.Duration
	halfOpenAfter  time.Duration
	now            func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the default thresholds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:          BreakerClosed,
		errorThreshold: defaultErrorThreshold,
		failureWindow:  defaultFailureWindow,
		halfOpenAfter:  defaultHalfOpenAfter,
		now:            time.Now,
	}
}

// CanAttempt reports whether a call may proceed. While open, one probe per
// half-open interval is allowed through.
func (b *CircuitBreaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.halfOpenAfter {
			b.state = BreakerHalfOpen
			slog.Info("CircuitBreaker.CanAttempt: half-open, allowing probe")
			return true
		}
		return false
	}
	return true
}

// RecordFailure counts a backend failure. A failure older than the window
// resets the count first; reaching the threshold opens the breaker.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.failureWindow {
		b.failureCount = 0
	}
	b.failureCount++
	b.lastFailure = now

	if b.failureCount >= b.errorThreshold {
		if b.state != BreakerOpen {
			slog.Warn("CircuitBreaker.RecordFailure: breaker opened", "failures", b.failureCount)
		}
		b.state = BreakerOpen
	}
}

// RecordSuccess closes the breaker and clears the failure count, regardless
// of prior state.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = BreakerClosed
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Breakers holds one breaker per backend key.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers() *Breakers {
	return &Breakers{breakers: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for the given backend key, creating it on first
// use.
func (s *Breakers) For(backend string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[backend]
	if !ok {
		b = NewCircuitBreaker()
		s.breakers[backend] = b
	}
	return b
}

package apimanager

import (
	"sync"
	"time"
)

// Circuit breaker defaults: after the threshold of consecutive failures
// the breaker opens for the timeout window; any success closes it.
const (
	DefaultFailureThreshold = 5
	DefaultBreakerTimeout   = 60 * time.Second
)

// CircuitBreaker suppresses outbound calls to a failing service.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	threshold   int
	timeout     time.Duration
	now         func() time.Time // injectable clock for testing
}

// NewCircuitBreaker creates a breaker with the given threshold and open
// window.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Open reports whether calls should currently be suppressed.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures < cb.threshold {
		return false
	}
	return cb.now().Sub(cb.lastFailure) < cb.timeout
}

// RecordSuccess resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.lastFailure = time.Time{}
}

// RecordFailure counts one more consecutive failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

package retry

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests are allowed through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means requests are blocked due to high failure rate.
	CircuitOpen
	// CircuitHalfOpen means limited requests are allowed to test recovery.
	CircuitHalfOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "Closed"
	case CircuitOpen:
		return "Open"
	case CircuitHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// BreakerConfig tunes when a circuit opens and how it probes for recovery.
type BreakerConfig struct {
	FailureThreshold float64       // failure rate (0.0-1.0) that opens the circuit
	MinRequests      int           // requests observed before the rate is evaluated
	OpenTimeout      time.Duration // wait before moving to half-open
	HalfOpenMaxTests int           // probe requests allowed while half-open
}

// DefaultBreakerConfig opens at 50% failures over at least 10 calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 0.5,
		MinRequests:      10,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxTests: 3,
	}
}

// CircuitBreaker stops calling a collaborator that keeps failing.
type CircuitBreaker struct {
	mu sync.RWMutex

	cfg      BreakerConfig
	onChange func(from, to CircuitState)

	state                CircuitState
	failures             int
	successes            int
	consecutiveSuccesses int // half-open only
	probes               int // half-open calls let through
	lastFailureTime      time.Time
	openedAt             time.Time
	now                  func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with default settings.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerFromConfig(DefaultBreakerConfig())
}

// NewCircuitBreakerWithConfig creates a circuit breaker with custom thresholds.
func NewCircuitBreakerWithConfig(failureThreshold float64, minRequests int, openTimeout time.Duration) *CircuitBreaker {
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = failureThreshold
	cfg.MinRequests = minRequests
	cfg.OpenTimeout = openTimeout
	return NewCircuitBreakerFromConfig(cfg)
}

// NewCircuitBreakerFromConfig creates a circuit breaker from cfg, filling
// zero fields from DefaultBreakerConfig.
func NewCircuitBreakerFromConfig(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenMaxTests <= 0 {
		cfg.HalfOpenMaxTests = def.HalfOpenMaxTests
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// OnStateChange registers fn to run on every transition. fn runs with the
// breaker locked and must not call back into it.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// setState must be called with the lock held.
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probes = 0
	cb.consecutiveSuccesses = 0
	if to == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// ShouldAllow reports whether a call may proceed. An open circuit turns
// half-open once OpenTimeout has passed and then admits at most
// HalfOpenMaxTests probes.
func (cb *CircuitBreaker) ShouldAllow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.setState(CircuitHalfOpen)
	}

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxTests {
			return false
		}
		cb.probes++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++

	switch cb.state {
	case CircuitHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.cfg.HalfOpenMaxTests {
			cb.setState(CircuitClosed)
			cb.reset()
		}

	case CircuitClosed:
		// Drop stale history so old successes cannot mask a fresh outage.
		if cb.failures+cb.successes >= cb.cfg.MinRequests*2 {
			cb.reset()
		}
	}
}

// RecordFailure records a failed request. Any failure while half-open
// reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	case CircuitClosed:
		total := cb.failures + cb.successes
		if total >= cb.cfg.MinRequests && float64(cb.failures)/float64(total) >= cb.cfg.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns current statistics.
func (cb *CircuitBreaker) GetStats() (failures, successes int, state CircuitState) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures, cb.successes, cb.state
}

// reset clears the counters (must be called with lock held).
func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.successes = 0
	cb.consecutiveSuccesses = 0
}

// PerServiceBreakers keeps one breaker per side channel (crm, mail, blob).
type PerServiceBreakers struct {
	mu       sync.RWMutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewPerServiceBreakers creates a new manager for per-service circuit breakers.
func NewPerServiceBreakers() *PerServiceBreakers {
	return NewPerServiceBreakersWithConfig(DefaultBreakerConfig())
}

// NewPerServiceBreakersWithConfig creates breakers on demand from cfg.
func NewPerServiceBreakersWithConfig(cfg BreakerConfig) *PerServiceBreakers {
	return &PerServiceBreakers{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetBreaker returns the circuit breaker for a service type, creating it if needed.
func (psb *PerServiceBreakers) GetBreaker(serviceType string) *CircuitBreaker {
	psb.mu.RLock()
	breaker, exists := psb.breakers[serviceType]
	psb.mu.RUnlock()

	if exists {
		return breaker
	}

	psb.mu.Lock()
	defer psb.mu.Unlock()

	if breaker, exists := psb.breakers[serviceType]; exists {
		return breaker
	}

	breaker = NewCircuitBreakerFromConfig(psb.cfg)
	psb.breakers[serviceType] = breaker
	return breaker
}

// ShouldAllow checks if requests to a service type should be allowed.
func (psb *PerServiceBreakers) ShouldAllow(serviceType string) bool {
	return psb.GetBreaker(serviceType).ShouldAllow()
}

// RecordSuccess records a successful request for a service type.
func (psb *PerServiceBreakers) RecordSuccess(serviceType string) {
	psb.GetBreaker(serviceType).RecordSuccess()
}

// RecordFailure records a failed request for a service type.
func (psb *PerServiceBreakers) RecordFailure(serviceType string) {
	psb.GetBreaker(serviceType).RecordFailure()
}

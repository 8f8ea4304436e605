package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means the circuit is testing if the gateway has recovered.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of accumulated failures before the circuit trips.
	FailureThreshold int
	// Cooldown is the duration to wait before admitting a probe request.
	Cooldown time.Duration
	// HalfOpenMaxCalls bounds concurrent probe requests in half-open state.
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreakerStatus is a snapshot of breaker state for status endpoints.
type CircuitBreakerStatus struct {
	State           string     `json:"state"`
	Failures        int        `json:"failures"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	HalfOpenCalls   int        `json:"half_open_calls"`
}

// CircuitBreaker implements the circuit breaker pattern for LLM gateway calls.
// It trips open after accumulating FailureThreshold failures, rejects calls
// during the cooldown, then admits a bounded number of probes in half-open
// state. A success in closed state decrements the failure counter so isolated
// failures do not accumulate toward the threshold.
//
// Callers must call AllowRequest before the guarded call and exactly one of
// RecordSuccess/RecordFailure after.
type CircuitBreaker struct {
	mu               sync.Mutex
	failures         int
	halfOpenCalls    int
	lastFailure      time.Time
	state            CircuitState
	failureThreshold int
	cooldown         time.Duration
	halfOpenMaxCalls int
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}
	if config.HalfOpenMaxCalls < 1 {
		config.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: config.FailureThreshold,
		cooldown:         config.Cooldown,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
	}
}

// AllowRequest returns true if the circuit breaker admits a request.
// In open state it transitions to half-open once the cooldown has elapsed and
// admits the transitioning request as the first probe.
func (cb *CircuitBreaker) AllowRequest() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, nil
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = CircuitHalfOpen
			cb.halfOpenCalls = 1
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker open: LLM gateway appears to be down (failed %d times, last failure %v ago)",
			cb.failures, time.Since(cb.lastFailure).Round(time.Second))
	case CircuitHalfOpen:
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			return true, nil
		}
		return false, fmt.Errorf("circuit breaker half_open: probe already in flight, testing if LLM gateway has recovered")
	default:
		return false, fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess records a successful guarded call. In half-open state the
// circuit closes and the failure count resets; in closed state the failure
// count decrements, never below 0.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failures = 0
		cb.halfOpenCalls = 0
	case CircuitClosed:
		if cb.failures > 0 {
			cb.failures--
		}
	}
}

// RecordFailure records a failed guarded call. A half-open failure reopens the
// circuit immediately; a closed-state failure trips the circuit once the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.halfOpenCalls = 0
		return
	}

	if cb.state == CircuitClosed && cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// GetStatus returns a snapshot of the breaker state.
func (cb *CircuitBreaker) GetStatus() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitBreakerStatus{
		State:         cb.state.String(),
		Failures:      cb.failures,
		HalfOpenCalls: cb.halfOpenCalls,
	}
	if !cb.lastFailure.IsZero() {
		t := cb.lastFailure
		status.LastFailureTime = &t
	}
	return status
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current accumulated failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset manually resets the circuit breaker to closed state.
// This should be used sparingly, typically only for testing or manual intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenCalls = 0
	cb.state = CircuitClosed
}

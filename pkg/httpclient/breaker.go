package httpclient

import (
	"sync"
	"time"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// CircuitBreaker opens after threshold consecutive failures, rejects requests
// for resetTimeout, then lets up to halfOpenMax probes through. A successful
// probe closes it; a failed one reopens it.
type CircuitBreaker struct {
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu          sync.Mutex
	state       CircuitState
	consecutive int
	probes      int
	openedAt    time.Time
	lastFailure time.Time
	requests    int64
	failures    int64
	onChange    func(from, to CircuitState)
}

// NewCircuitBreaker creates a closed breaker. Values below 1 for threshold or
// halfOpenMax use the package defaults.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if threshold < 1 {
		threshold = DefaultCircuitThreshold
	}
	if halfOpenMax < 1 {
		halfOpenMax = DefaultCircuitHalfOpenMax
	}
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		now:          time.Now,
	}
}

// OnStateChange registers fn to run, outside the breaker lock, on every
// state transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false
		}
		notify := cb.setState(CircuitHalfOpen)
		cb.probes = 1
		cb.mu.Unlock()
		notify()
		return true
	case CircuitHalfOpen:
		ok := cb.probes < cb.halfOpenMax
		if ok {
			cb.probes++
		}
		cb.mu.Unlock()
		return ok
	default:
		cb.mu.Unlock()
		return true
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.requests++
	cb.consecutive = 0
	notify := func() {}
	if cb.state == CircuitHalfOpen {
		notify = cb.setState(CircuitClosed)
	}
	cb.mu.Unlock()
	notify()
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.requests++
	cb.failures++
	cb.consecutive++
	cb.lastFailure = cb.now()
	notify := func() {}
	if cb.state == CircuitHalfOpen || (cb.state == CircuitClosed && cb.consecutive >= cb.threshold) {
		notify = cb.setState(CircuitOpen)
		cb.openedAt = cb.lastFailure
	}
	cb.mu.Unlock()
	notify()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := cb.setState(CircuitClosed)
	cb.consecutive = 0
	cb.mu.Unlock()
	notify()
}

// setState changes state under cb.mu and returns the callback to run once
// the lock is released.
func (cb *CircuitBreaker) setState(to CircuitState) func() {
	from := cb.state
	cb.state = to
	cb.probes = 0
	fn := cb.onChange
	if fn == nil || from == to {
		return func() {}
	}
	return func() { fn(from, to) }
}

// CircuitBreakerStats is a point-in-time view of a breaker.
type CircuitBreakerStats struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalRequests       int64     `json:"total_requests"`
	TotalFailures       int64     `json:"total_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// Stats returns current statistics for this breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutive,
		TotalRequests:       cb.requests,
		TotalFailures:       cb.failures,
		LastFailure:         cb.lastFailure,
	}
}

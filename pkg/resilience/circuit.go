package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows calls to pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects all calls until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call after the cool-down.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one downstream dependency. After FailureThreshold
// consecutive failures it opens and rejects calls until CoolDown elapses,
// then lets a single probe through. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.RWMutex

	failureThreshold int
	coolDown         time.Duration

	state      CircuitState
	failures   int
	openedAt   time.Time
	lastChange time.Time
}

// NewCircuitBreaker creates a breaker with the given thresholds.
// Zero or negative values fall back to the defaults from the delivery policy:
// open after 5 consecutive failures, cool down for 30 seconds.
func NewCircuitBreaker(failureThreshold int, coolDown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		coolDown:         coolDown,
		state:            CircuitClosed,
	}
}

// Allow reports whether a call may proceed. Takes the write lock because an
// open breaker transitions to half-open here once the cool-down has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.openedAt) > cb.coolDown {
			cb.state = CircuitHalfOpen
			cb.lastChange = time.Now()
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure counter and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != CircuitClosed {
		cb.state = CircuitClosed
		cb.lastChange = time.Now()
	}
}

// RecordFailure increments the failure counter and opens the breaker once
// the threshold is crossed. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.openedAt = time.Now()
			cb.lastChange = cb.openedAt
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.failures = cb.failureThreshold
		cb.openedAt = time.Now()
		cb.lastChange = cb.openedAt
	}
}

// State returns the state a caller would observe, accounting for the
// automatic open-to-half-open transition.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.state == CircuitOpen && time.Since(cb.openedAt) > cb.coolDown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters. Operator action.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.openedAt = time.Time{}
	cb.lastChange = time.Now()
}

// CircuitStats provides visibility into breaker state for health reporting.
type CircuitStats struct {
	Dependency string    `json:"dependency"`
	State      string    `json:"state"`
	Failures   int       `json:"failures"`
	OpenedAt   time.Time `json:"opened_at,omitzero"`
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitStats{
		State:    cb.state.String(),
		Failures: cb.failures,
		OpenedAt: cb.openedAt,
	}
}

// BreakerRegistry owns one breaker per downstream dependency name. It replaces
// module-level singleton state so tests can construct and reset breakers
// deterministically. Safe for concurrent use.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	coolDown         time.Duration
}

// RegistryOption configures a BreakerRegistry.
type RegistryOption func(*BreakerRegistry)

// WithFailureThreshold sets the consecutive-failure count that opens breakers
// created by the registry.
func WithFailureThreshold(n int) RegistryOption {
	return func(r *BreakerRegistry) {
		if n > 0 {
			r.failureThreshold = n
		}
	}
}

// WithCoolDown sets the open-state cool-down for breakers created by the registry.
func WithCoolDown(d time.Duration) RegistryOption {
	return func(r *BreakerRegistry) {
		if d > 0 {
			r.coolDown = d
		}
	}
}

// NewBreakerRegistry creates an empty registry. Breakers are created lazily
// on first use of a dependency name.
func NewBreakerRegistry(opts ...RegistryOption) *BreakerRegistry {
	r := &BreakerRegistry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: 5,
		coolDown:         30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for the named dependency, creating it if needed.
func (r *BreakerRegistry) Get(dependency string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[dependency]; ok {
		return cb
	}
	cb = NewCircuitBreaker(r.failureThreshold, r.coolDown)
	r.breakers[dependency] = cb
	return cb
}

// Reset closes the breaker for the named dependency. No-op for unknown names.
func (r *BreakerRegistry) Reset(dependency string) {
	r.mu.RLock()
	cb, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		cb.Reset()
	}
}

// Stats returns a snapshot per known dependency, keyed by name.
func (r *BreakerRegistry) Stats() map[string]CircuitStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]CircuitStats, len(r.breakers))
	for name, cb := range r.breakers {
		s := cb.Stats()
		s.Dependency = name
		out[name] = s
	}
	return out
}

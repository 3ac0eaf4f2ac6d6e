package resilience

import (
	"context"
	"fmt"
	"time"
)

// Operation performs one remote call attempt and returns its result or a
// typed error. Retryability is decided by the error's Temporary flag.
type Operation[T any] func(ctx context.Context) (T, error)

// Executor wraps remote calls with a per-dependency circuit breaker and
// exponential-backoff retries. It holds no state of its own beyond the shared
// breaker registry and is safe for concurrent use from many in-flight
// deliveries.
type Executor struct {
	breakers *BreakerRegistry
	backoff  BackoffStrategy
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBackoff overrides the backoff strategy. Tests use FixedBackoff to avoid
// real sleeps.
func WithBackoff(strategy BackoffStrategy) ExecutorOption {
	return func(e *Executor) {
		if strategy != nil {
			e.backoff = strategy
		}
	}
}

// NewExecutor creates an executor on top of the given breaker registry.
func NewExecutor(breakers *BreakerRegistry, opts ...ExecutorOption) *Executor {
	if breakers == nil {
		breakers = NewBreakerRegistry()
	}
	e := &Executor{
		breakers: breakers,
		backoff:  DefaultBackoffStrategy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Breakers exposes the shared registry for health reporting and operator resets.
func (e *Executor) Breakers() *BreakerRegistry {
	return e.breakers
}

// Execute runs op against the named dependency with up to maxAttempts tries.
//
// If the dependency's breaker is open and the cool-down has not elapsed,
// Execute fails immediately with ErrCircuitOpen; no call is made and no
// attempt is counted. Each failure feeds the breaker; a success resets it.
// Terminal errors (no Temporary flag, or Temporary() == false) are returned
// to the caller without consuming the remaining budget, so the caller can
// decide on token deactivation.
func Execute[T any](ctx context.Context, e *Executor, dependency string, maxAttempts int, op Operation[T]) (T, error) {
	var zero T
	if op == nil {
		return zero, ErrNilOperation
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	cb := e.breakers.Get(dependency)
	if !cb.Allow() {
		return zero, fmt.Errorf("%w: %s", ErrCircuitOpen, dependency)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Backoff keyed by the attempt about to run, respecting caller
			// cancellation.
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(e.backoff.NextInterval(attempt)):
			}

			// The breaker may have been opened by concurrent failures
			// while this call was sleeping.
			if !cb.Allow() {
				return zero, fmt.Errorf("%w: %s", ErrCircuitOpen, dependency)
			}
		}

		result, err := op(ctx)
		if err == nil {
			cb.RecordSuccess()
			return result, nil
		}

		cb.RecordFailure()
		lastErr = err

		// Caller timeouts count as transient per the delivery policy, so a
		// deadline error still goes through the retryable check below.
		if !isRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts against %s: %w", ErrAttemptsExhausted, maxAttempts, dependency, lastErr)
}

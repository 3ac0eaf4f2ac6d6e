package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy calculates the delay before a retry attempt.
// Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the delay before the given attempt number.
	// The first attempt runs without delay, so callers pass 2 and up.
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay each attempt and adds positive jitter
// so concurrent retries against the same dependency spread out instead of
// arriving in lockstep.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// NextInterval returns min(MaxDelay, BaseDelay * 2^(attempt-1)) plus up to
// JitterFactor of random jitter on top. The cap applies before jitter, so the
// worst case is MaxDelay * (1 + JitterFactor).
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := e.BaseDelay
	if base == 0 {
		base = time.Second
	}
	max := e.MaxDelay
	if max == 0 {
		max = 30 * time.Second
	}

	interval := float64(base) * math.Pow(2, float64(attempt-1))
	if interval > float64(max) {
		interval = float64(max)
	}

	if e.JitterFactor > 0 {
		interval += interval * rand.Float64() * e.JitterFactor
	}

	return time.Duration(interval)
}

// FixedBackoff returns a constant delay. Mostly useful in tests.
type FixedBackoff struct {
	Interval time.Duration
}

// NextInterval always returns the configured interval.
func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoffStrategy returns the delivery-path backoff policy:
// 1s base, 30s cap, 10% jitter.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
	}
}

// Package ratelimit provides a fixed-window request limiter for the public
// API endpoints. The window counter lives in a pluggable store so multiple
// daemon instances can share one budget through Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreRequired is returned when a limiter is created without a store.
	ErrStoreRequired = errors.New("ratelimit: store is required")
	// ErrInvalidLimit is returned when the per-window limit is not positive.
	ErrInvalidLimit = errors.New("ratelimit: limit must be positive")
	// ErrInvalidWindow is returned when the window duration is not positive.
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")
	// ErrKeyRequired is returned when a check is made with an empty key.
	ErrKeyRequired = errors.New("ratelimit: key is required")
)

// Result reports the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
// Zero when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store is the counter backend. IncrementAndGet must be atomic: it bumps
// the key's counter, starts the window TTL on first increment, and returns
// the post-increment value together with the remaining window.
type Store interface {
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// Limiter applies a fixed-window limit per key.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New creates a limiter allowing limit requests per window for each key.
func New(store Store, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &Limiter{store: store, limit: limit, window: window}, nil
}

// Allow consumes one slot for key and reports whether the request fits the
// current window.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, ttl, err := l.store.IncrementAndGet(ctx, key, l.window)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = l.window
	}

	remaining := l.limit - int(count)
	return &Result{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(0, remaining),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return l.store.Reset(ctx, key)
}

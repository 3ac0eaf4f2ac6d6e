package devices

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound is returned when no record exists for a token value.
	ErrTokenNotFound = errors.New("device token not found")
)

// Storage persists device-token records in the keyed store. Stat updates are
// scoped per token record; implementations use the store's native
// conditional-update primitive rather than a global lock.
type Storage interface {
	// Upsert inserts or replaces the record keyed by its provider token value.
	Upsert(ctx context.Context, tok *Token) error

	// FindByToken returns the record for a provider token value.
	FindByToken(ctx context.Context, token string) (*Token, error)

	// FindActiveByWorker returns the worker's active tokens, most recently
	// seen first.
	FindActiveByWorker(ctx context.Context, workerID string) ([]Token, error)

	// ApplyOutcome atomically records one delivery attempt against the token
	// and returns the updated record. Sent always increments; success resets
	// the consecutive-failure counter, failure increments it.
	ApplyOutcome(ctx context.Context, token string, success bool, at time.Time) (*Token, error)

	// SetActive flips the active flag for a token value.
	SetActive(ctx context.Context, token string, active bool) error

	// DeactivateOthers deactivates every active token the worker owns except
	// keepToken and returns how many were touched.
	DeactivateOthers(ctx context.Context, workerID, keepToken string) (int64, error)

	// DeleteStale removes tokens that are inactive, were last seen before
	// cutoff, or have at least maxConsecutiveFailures consecutive failures.
	DeleteStale(ctx context.Context, cutoff time.Time, maxConsecutiveFailures int) (int64, error)

	// CountActiveSince counts active tokens seen after the given time. The
	// monitor uses it as the active-device gauge.
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)

	// Counts returns total and active token counts for health reporting.
	Counts(ctx context.Context) (total, active int64, err error)
}

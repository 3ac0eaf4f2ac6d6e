package auditlog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidRecord indicates the record failed validation.
	ErrInvalidRecord = errors.New("invalid audit record")

	// ErrStorageUnavailable indicates the storage backend cannot be reached.
	ErrStorageUnavailable = errors.New("audit storage unavailable")
)

// Criteria narrows a Query. Zero values match everything.
type Criteria struct {
	Event          EventType
	WorkerID       string
	NotificationID string
	Since          time.Time
	Until          time.Time
	Limit          int
}

// Storage persists audit records.
type Storage interface {
	// Append stores a single record.
	Append(ctx context.Context, rec Record) error

	// Query returns records matching the criteria, newest first.
	Query(ctx context.Context, criteria Criteria) ([]Record, error)

	// CountByEvent counts records of the given event type created after since.
	CountByEvent(ctx context.Context, event EventType, since time.Time) (int64, error)

	// AverageDuration averages the Duration field over records of the given
	// event type created after since. Records without a duration are ignored.
	// Returns zero when no records match.
	AverageDuration(ctx context.Context, event EventType, since time.Time) (time.Duration, error)

	// PurgeOlderThan removes records of the given event type created before
	// cutoff and returns the removed count.
	PurgeOlderThan(ctx context.Context, event EventType, cutoff time.Time) (int64, error)
}

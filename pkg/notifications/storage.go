package notifications

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotificationNotFound is returned when no record exists for an id.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidTransition is returned for a status change the model forbids.
	ErrInvalidTransition = errors.New("invalid notification status transition")

	// ErrNotRequeueable is returned when a re-queue target is not FAILED or
	// has exhausted its attempt budget.
	ErrNotRequeueable = errors.New("notification is not eligible for re-queue")
)

// Storage persists notifications in the keyed store. Notifications are never
// deleted; FAILED -> PENDING is the only backwards transition and only
// Requeue performs it.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, n *Notification) error

	// Get retrieves one notification.
	Get(ctx context.Context, id string) (*Notification, error)

	// RecordAttempt applies one delivery attempt outcome: sets status,
	// increments the attempt counter, and stamps the attempt time. Fails
	// with ErrInvalidTransition when the model forbids the change.
	RecordAttempt(ctx context.Context, id string, status Status, at time.Time) error

	// MarkDelivered confirms receipt on the device and moves the record to
	// DELIVERED without consuming an attempt. Fails with ErrInvalidTransition
	// unless the record is SENT.
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// Requeue moves a FAILED notification with attempts below maxAttempts
	// back to PENDING. Fails with ErrNotRequeueable otherwise.
	Requeue(ctx context.Context, id string, maxAttempts int) error

	// CountByStatusSince counts notifications in any of the given statuses
	// created after since.
	CountByStatusSince(ctx context.Context, statuses []Status, since time.Time) (int64, error)

	// CountRetryQueue counts FAILED notifications with attempts below
	// maxAttempts whose last attempt was after attemptedSince. This is the
	// monitor's delivery-queue-depth gauge.
	CountRetryQueue(ctx context.Context, maxAttempts int, attemptedSince time.Time) (int64, error)

	// FindRequeueable returns up to limit FAILED notifications with attempts
	// below maxAttempts whose last attempt was before idleBefore.
	FindRequeueable(ctx context.Context, maxAttempts int, idleBefore time.Time, limit int) ([]Notification, error)
}

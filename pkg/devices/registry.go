package devices

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/validator"
)

const (
	// autoDeactivateThreshold is the consecutive-failure count at which a
	// token is deactivated automatically.
	autoDeactivateThreshold = 5

	// purgeFailureThreshold is the harder limit at which Cleanup removes the
	// record entirely.
	purgeFailureThreshold = 10
)

// tokenPattern matches the provider's token alphabet.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_:.\-]+$`)

// RegisterInput is the mobile registration payload. The HTTP layer has
// already authenticated the worker; the registry trusts WorkerID.
type RegisterInput struct {
	WorkerID    string       `json:"worker_id"`
	Token       string       `json:"token"`
	Platform    string       `json:"platform"`
	AppVersion  string       `json:"app_version"`
	OSVersion   string       `json:"os_version"`
	DeviceID    string       `json:"device_id,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// Registry owns the device-token lifecycle: registration, preferences,
// delivery statistics, and deactivation.
type Registry struct {
	storage Storage
	audit   *auditlog.Logger
	log     *slog.Logger

	// singleActiveDevice deactivates a worker's other tokens on every
	// registration. Off by default: workers may legitimately carry a phone
	// and a tablet (multi-device fan-out).
	singleActiveDevice bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSingleActiveDevice switches the registry to the single-active-device
// policy: registering a token deactivates the worker's other tokens.
func WithSingleActiveDevice() RegistryOption {
	return func(r *Registry) { r.singleActiveDevice = true }
}

// WithLogger sets the registry logger.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates a Registry on top of the given storage.
func NewRegistry(storage Storage, audit *auditlog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		storage: storage,
		audit:   audit,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) validate(in RegisterInput) error {
	return validator.Apply(
		validator.Required("worker_id", in.WorkerID),
		validator.Required("token", in.Token),
		validator.Matches("token", in.Token, tokenPattern, "does not match the provider token format"),
		validator.MaxLen("token", in.Token, 4096),
		validator.InListString("platform", in.Platform, Platforms),
		validator.Required("app_version", in.AppVersion),
		validator.Required("os_version", in.OSVersion),
	)
}

// RegisterOrUpdate upserts a token record keyed by the provider token value.
// Repeated registrations of the same token are idempotent: they refresh
// last-seen, version fields, and preferences without creating a duplicate.
// Registration doubles as the device heartbeat.
func (r *Registry) RegisterOrUpdate(ctx context.Context, in RegisterInput) (*Token, error) {
	if err := r.validate(in); err != nil {
		return nil, err
	}

	now := time.Now()
	existing, err := r.storage.FindByToken(ctx, in.Token)
	if err != nil && err != ErrTokenNotFound {
		return nil, fmt.Errorf("device registry: lookup failed: %w", err)
	}

	var tok *Token
	if existing != nil {
		tok = existing
		tok.WorkerID = in.WorkerID
		tok.Platform = Platform(in.Platform)
		tok.AppVersion = in.AppVersion
		tok.OSVersion = in.OSVersion
		if in.DeviceID != "" {
			tok.DeviceID = in.DeviceID
		}
	} else {
		tok = &Token{
			ID:          uuid.NewString(),
			WorkerID:    in.WorkerID,
			Token:       in.Token,
			Platform:    Platform(in.Platform),
			AppVersion:  in.AppVersion,
			OSVersion:   in.OSVersion,
			DeviceID:    in.DeviceID,
			Preferences: DefaultPreferences(),
			CreatedAt:   now,
		}
	}

	if in.Preferences != nil {
		tok.Preferences = *in.Preferences
	}
	tok.Active = true
	tok.LastSeenAt = now
	tok.UpdatedAt = now

	if err := r.storage.Upsert(ctx, tok); err != nil {
		return nil, fmt.Errorf("device registry: upsert failed: %w", err)
	}

	if r.singleActiveDevice {
		if _, err := r.DeactivateOthersForWorker(ctx, in.WorkerID, in.Token); err != nil {
			r.log.WarnContext(ctx, "failed to deactivate other tokens",
				logger.WorkerID(in.WorkerID), logger.Error(err))
		}
	}

	r.audit.Record(ctx, auditlog.Record{
		WorkerID: tok.WorkerID,
		Event:    auditlog.EventDeviceRegistered,
		Metadata: map[string]any{"platform": string(tok.Platform), "app_version": tok.AppVersion},
	})

	return tok, nil
}

// DeactivateOthersForWorker deactivates every other active token the worker
// owns, preventing duplicate delivery across device churn.
func (r *Registry) DeactivateOthersForWorker(ctx context.Context, workerID, keepToken string) (int64, error) {
	n, err := r.storage.DeactivateOthers(ctx, workerID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("device registry: deactivate others: %w", err)
	}
	if n > 0 {
		r.log.InfoContext(ctx, "deactivated superseded device tokens",
			logger.WorkerID(workerID), logger.Count(int(n)))
	}
	return n, nil
}

// Deactivate marks a token inactive. Operator or provider-driven. Calling it
// on an already inactive token is a no-op.
func (r *Registry) Deactivate(ctx context.Context, token, reason string) error {
	tok, err := r.storage.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if !tok.Active {
		return nil
	}
	if err := r.storage.SetActive(ctx, token, false); err != nil {
		return fmt.Errorf("device registry: deactivate: %w", err)
	}

	r.audit.Record(ctx, auditlog.Record{
		WorkerID: tok.WorkerID,
		Event:    auditlog.EventDeviceDeactivated,
		Metadata: map[string]any{"reason": reason},
	})
	r.log.InfoContext(ctx, "device token deactivated",
		logger.WorkerID(tok.WorkerID), logger.DeviceToken(token), slog.String("reason", reason))
	return nil
}

// FindActiveForWorker returns the worker's active tokens, most recently seen
// first.
func (r *Registry) FindActiveForWorker(ctx context.Context, workerID string) ([]Token, error) {
	return r.storage.FindActiveByWorker(ctx, workerID)
}

// CanReceive reports whether the token may receive a notification of the
// given priority right now. Inactive tokens and disabled push always block.
// Quiet hours block unless the notification is CRITICAL and the device has
// the bypass flag set. Blocked tokens are skipped, never deactivated.
func (r *Registry) CanReceive(tok *Token, priority notifications.Priority, now time.Time) bool {
	if tok == nil || !tok.Active || !tok.Preferences.PushEnabled {
		return false
	}
	if tok.Preferences.InQuietHours(now) {
		return priority == notifications.PriorityCritical && tok.Preferences.CriticalBypass
	}
	return true
}

// RecordSuccess registers a successful delivery attempt on the token.
func (r *Registry) RecordSuccess(ctx context.Context, token string) error {
	_, err := r.storage.ApplyOutcome(ctx, token, true, time.Now())
	if err != nil {
		return fmt.Errorf("device registry: record success: %w", err)
	}
	return nil
}

// RecordFailure registers a failed delivery attempt. Crossing the
// consecutive-failure threshold deactivates the token automatically.
func (r *Registry) RecordFailure(ctx context.Context, token string) error {
	tok, err := r.storage.ApplyOutcome(ctx, token, false, time.Now())
	if err != nil {
		return fmt.Errorf("device registry: record failure: %w", err)
	}

	if tok.Active && tok.Stats.ConsecutiveFailures >= autoDeactivateThreshold {
		if err := r.Deactivate(ctx, token, "consecutive delivery failures"); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes tokens inactive longer than inactiveDays, already-inactive
// tokens, and tokens with persistent failures. Returns the removed count.
// Called by the monitor's optimization sweep.
func (r *Registry) Cleanup(ctx context.Context, inactiveDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -inactiveDays)
	n, err := r.storage.DeleteStale(ctx, cutoff, purgeFailureThreshold)
	if err != nil {
		return 0, fmt.Errorf("device registry: cleanup: %w", err)
	}
	if n > 0 {
		r.log.InfoContext(ctx, "purged stale device tokens", logger.Count(int(n)))
	}
	return n, nil
}

// Counts exposes token totals for health reporting.
func (r *Registry) Counts(ctx context.Context) (total, active int64, err error) {
	return r.storage.Counts(ctx)
}

// ActiveSince counts active tokens whose last heartbeat falls after since.
func (r *Registry) ActiveSince(ctx context.Context, since time.Time) (int64, error) {
	return r.storage.CountActiveSince(ctx, since)
}

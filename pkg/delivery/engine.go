package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftflow/pushkit/pkg/auditlog"
	"github.com/shiftflow/pushkit/pkg/devices"
	"github.com/shiftflow/pushkit/pkg/logger"
	"github.com/shiftflow/pushkit/pkg/notifications"
	"github.com/shiftflow/pushkit/pkg/provider"
	"github.com/shiftflow/pushkit/pkg/resilience"
)

// ProviderDependency is the circuit-breaker name for the remote push
// provider. Every provider call in the process shares this breaker.
const ProviderDependency = "push-provider"

// ErrNotDeliverable is returned when Deliver is called on a notification
// that is not PENDING. FAILED records go through the monitor's re-queue.
var ErrNotDeliverable = errors.New("notification is not pending delivery")

// ErrDeliveryFailed is returned when every eligible device rejected the
// message with a non-retryable error, so no re-queue will help.
var ErrDeliveryFailed = errors.New("delivery failed for every eligible device")

// Observer watches delivery timing. The monitor implements it to track
// in-flight deliveries and flag slow ones.
type Observer interface {
	DeliveryStarted(notificationID string, at time.Time)
	DeliveryFinished(notificationID string, at time.Time, err error)
}

// Result summarizes one Deliver call across the recipient's devices.
type Result struct {
	NotificationID string
	Status         notifications.Status
	Attempted      int  // tokens a provider call was made for
	Accepted       int  // tokens the provider accepted the message for
	Failed         int  // tokens that exhausted their budget or failed terminally
	Blocked        int  // tokens skipped by preferences or quiet hours
	InvalidTokens  int  // tokens deactivated on terminal provider errors
	NoDevice       bool // recipient has no active device at all
}

// Engine drives notification delivery: it resolves the recipient's devices,
// applies preference gates, builds the provider payload, and pushes through
// the resilient executor with the priority's attempt budget.
type Engine struct {
	store    notifications.Storage
	registry *devices.Registry
	sender   provider.Sender
	executor *resilience.Executor
	audit    *auditlog.Logger
	log      *slog.Logger
	observer Observer
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a delivery timing observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the time source. Tests use it to pin quiet hours.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine creates a delivery engine.
func NewEngine(store notifications.Storage, registry *devices.Registry, sender provider.Sender, executor *resilience.Executor, audit *auditlog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		sender:   sender,
		executor: executor,
		audit:    audit,
		log:      slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Executor exposes the resilient executor for health reporting.
func (e *Engine) Executor() *resilience.Executor {
	return e.executor
}

// ConfirmDelivered records the device-side receipt acknowledgement, moving
// the notification from SENT to DELIVERED.
func (e *Engine) ConfirmDelivered(ctx context.Context, notificationID string) error {
	return e.store.MarkDelivered(ctx, notificationID, e.clock())
}

// Deliver pushes a PENDING notification to every eligible device of its
// recipient. Tokens blocked by preferences are skipped without touching
// their statistics; the notification stays PENDING when nothing could be
// attempted at all. The call itself errors only when the circuit was open
// before any attempt or every eligible token failed non-retryably, in
// which case ErrDeliveryFailed is returned with the provider error wrapped.
func (e *Engine) Deliver(ctx context.Context, notificationID string) (*Result, error) {
	n, err := e.store.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.Status != notifications.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDeliverable, n.ID, n.Status)
	}

	res := &Result{NotificationID: n.ID, Status: n.Status}
	now := e.clock()

	tokens, err := e.registry.FindActiveForWorker(ctx, n.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("delivery: device lookup failed: %w", err)
	}
	if len(tokens) == 0 {
		res.NoDevice = true
		e.skip(ctx, n, "", "no_active_device")
		return res, nil
	}

	var eligible []devices.Token
	for _, tok := range tokens {
		if e.registry.CanReceive(&tok, n.Priority, now) {
			eligible = append(eligible, tok)
			continue
		}
		res.Blocked++
		e.skip(ctx, n, tok.Token, blockReason(tok, now))
	}
	if len(eligible) == 0 {
		return res, nil
	}

	payload, err := e.buildPayload(n, now)
	if err != nil {
		return nil, err
	}

	if e.observer != nil {
		e.observer.DeliveryStarted(n.ID, now)
	}
	if len(eligible) == 1 {
		err = e.deliverSingle(ctx, n, eligible[0].Token, payload, res)
	} else {
		err = e.deliverBatch(ctx, n, eligible, payload, res)
	}
	if e.observer != nil {
		e.observer.DeliveryFinished(n.ID, e.clock(), err)
	}
	if resilience.IsCircuitOpen(err) {
		return res, err
	}

	if updated, getErr := e.store.Get(ctx, n.ID); getErr == nil {
		res.Status = updated.Status
	}
	return res, err
}

func (e *Engine) buildPayload(n *notifications.Notification, now time.Time) (provider.Payload, error) {
	cfg, err := notifications.ChannelFor(n.Type)
	if err != nil {
		return provider.Payload{}, err
	}
	return provider.Payload{
		Title:     n.Title,
		Body:      n.Body,
		Urgency:   notifications.UrgencyFor(n.Priority),
		ChannelID: cfg.ChannelID,
		Data:      n.Data,
		SentAt:    now,
	}, nil
}

// deliverSingle pushes to one token through the resilient executor. Status,
// device statistics, and the audit trail are updated once per provider
// attempt inside the operation, so intermediate retries are visible.
func (e *Engine) deliverSingle(ctx context.Context, n *notifications.Notification, token string, payload provider.Payload, res *Result) error {
	budget := n.Priority.AttemptBudget()
	res.Attempted = 1

	attempt := 0
	op := func(ctx context.Context) (string, error) {
		attempt++
		start := e.clock()
		msgID, sendErr := e.sender.SendOne(ctx, token, payload)
		finished := e.clock()

		if sendErr == nil {
			e.recordAttempt(ctx, n, notifications.StatusSent, finished)
			e.recordTokenSuccess(ctx, n, token, attempt, finished.Sub(start))
			return msgID, nil
		}

		final := isTerminal(sendErr) || attempt >= budget
		status := notifications.StatusPending
		if final {
			status = notifications.StatusFailed
		}
		e.recordAttempt(ctx, n, status, finished)
		e.recordTokenFailure(ctx, n, token, attempt, sendErr)
		return "", sendErr
	}

	_, err := resilience.Execute(ctx, e.executor, ProviderDependency, budget, op)
	if err == nil {
		res.Accepted = 1
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		// No attempt was consumed; the notification stays as it was.
		return err
	}

	res.Failed = 1
	if provider.ShouldDeactivate(err) {
		res.InvalidTokens = 1
		e.deactivateToken(ctx, token, err)
	}
	e.log.WarnContext(ctx, "notification delivery failed",
		logger.NotificationID(n.ID), logger.WorkerID(n.RecipientID), logger.Error(err))
	if errors.Is(err, resilience.ErrAttemptsExhausted) {
		// Transient exhaustion leaves the record for the monitor's re-queue.
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
}

// deliverBatch pushes one payload to many tokens via multicast, splitting
// above the provider batch limit. Only tokens that failed transiently are
// carried into the next attempt.
func (e *Engine) deliverBatch(ctx context.Context, n *notifications.Notification, eligible []devices.Token, payload provider.Payload, res *Result) error {
	budget := n.Priority.AttemptBudget()
	res.Attempted = len(eligible)

	remaining := make([]string, 0, len(eligible))
	for _, tok := range eligible {
		remaining = append(remaining, tok.Token)
	}

	attempt := 0
	accepted := 0
	op := func(ctx context.Context) (int, error) {
		attempt++
		start := e.clock()

		var retry []string
		var lastErr error
		for _, chunk := range splitBatch(remaining, provider.MaxBatchTokens) {
			batch, sendErr := e.sender.SendBatch(ctx, chunk, payload)
			if sendErr != nil {
				// Whole-call failure: the entire chunk is retried.
				retry = append(retry, chunk...)
				lastErr = sendErr
				for _, token := range chunk {
					e.recordTokenFailure(ctx, n, token, attempt, sendErr)
				}
				continue
			}
			for _, tr := range batch.Results {
				if tr.Err == nil {
					accepted++
					e.recordTokenSuccess(ctx, n, tr.Token, attempt, e.clock().Sub(start))
					continue
				}
				e.recordTokenFailure(ctx, n, tr.Token, attempt, tr.Err)
				lastErr = tr.Err
				if provider.ShouldDeactivate(tr.Err) {
					res.InvalidTokens++
					res.Failed++
					e.deactivateToken(ctx, tr.Token, tr.Err)
					continue
				}
				retry = append(retry, tr.Token)
			}
		}

		finished := e.clock()
		if len(retry) == 0 {
			if accepted == 0 {
				// Every remaining token failed terminally. Surfacing lastErr
				// counts the attempt against the breaker and stops the loop.
				e.recordAttempt(ctx, n, notifications.StatusFailed, finished)
				return 0, lastErr
			}
			e.recordAttempt(ctx, n, notifications.StatusSent, finished)
			return accepted, nil
		}

		remaining = retry
		status := notifications.StatusPending
		if attempt >= budget {
			res.Failed += len(retry)
			status = notifications.StatusFailed
			if accepted > 0 {
				// At least one device got the message.
				status = notifications.StatusSent
			}
		}
		e.recordAttempt(ctx, n, status, finished)
		return accepted, lastErr
	}

	_, err := resilience.Execute(ctx, e.executor, ProviderDependency, budget, op)
	res.Accepted = accepted
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		if attempt == 0 {
			return err
		}
	} else if accepted == 0 && !errors.Is(err, resilience.ErrAttemptsExhausted) {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	e.log.WarnContext(ctx, "multicast delivery incomplete",
		logger.NotificationID(n.ID), logger.WorkerID(n.RecipientID),
		logger.Count(len(remaining)), logger.Error(err))
	return nil
}

// recordAttempt updates the notification status, swallowing storage races:
// a concurrent transition losing to this one is already audited per token.
func (e *Engine) recordAttempt(ctx context.Context, n *notifications.Notification, status notifications.Status, at time.Time) {
	if err := e.store.RecordAttempt(ctx, n.ID, status, at); err != nil {
		e.log.ErrorContext(ctx, "failed to record delivery attempt",
			logger.NotificationID(n.ID), logger.Error(err))
	}
}

func (e *Engine) recordTokenSuccess(ctx context.Context, n *notifications.Notification, token string, attempt int, took time.Duration) {
	if err := e.registry.RecordSuccess(ctx, token); err != nil {
		e.log.ErrorContext(ctx, "failed to update device stats", logger.DeviceToken(token), logger.Error(err))
	}
	e.audit.Record(ctx, auditlog.Record{
		Event:          auditlog.EventDeliveryDelivered,
		WorkerID:       n.RecipientID,
		NotificationID: n.ID,
		Duration:       took,
		Metadata:       map[string]any{"attempt": attempt},
	})
}

func (e *Engine) recordTokenFailure(ctx context.Context, n *notifications.Notification, token string, attempt int, sendErr error) {
	if err := e.registry.RecordFailure(ctx, token); err != nil {
		e.log.ErrorContext(ctx, "failed to update device stats", logger.DeviceToken(token), logger.Error(err))
	}

	event := auditlog.EventDeliveryFailed
	if provider.CodeOf(sendErr) == provider.CodeUnknown {
		// Unknown provider codes are retried like transient faults but kept
		// distinguishable in the trail for taxonomy review.
		event = auditlog.EventDeliveryUnknown
	}
	e.audit.Record(ctx, auditlog.Record{
		Event:          event,
		WorkerID:       n.RecipientID,
		NotificationID: n.ID,
		Error:          sendErr.Error(),
		Metadata:       map[string]any{"attempt": attempt, "code": string(provider.CodeOf(sendErr))},
	})
}

func (e *Engine) deactivateToken(ctx context.Context, token string, sendErr error) {
	reason := string(provider.CodeOf(sendErr))
	if err := e.registry.Deactivate(ctx, token, reason); err != nil {
		e.log.ErrorContext(ctx, "failed to deactivate invalid token",
			logger.DeviceToken(token), logger.Error(err))
	}
}

func (e *Engine) skip(ctx context.Context, n *notifications.Notification, token, reason string) {
	meta := map[string]any{"reason": reason}
	e.audit.Record(ctx, auditlog.Record{
		Event:          auditlog.EventDeliverySkipped,
		WorkerID:       n.RecipientID,
		NotificationID: n.ID,
		Metadata:       meta,
	})
	e.log.InfoContext(ctx, "delivery skipped",
		logger.NotificationID(n.ID), logger.WorkerID(n.RecipientID), slog.String("reason", reason))
}

func blockReason(tok devices.Token, now time.Time) string {
	if !tok.Preferences.PushEnabled {
		return "push_disabled"
	}
	if tok.Preferences.InQuietHours(now) {
		return "quiet_hours"
	}
	return "blocked"
}

// isTerminal reports whether the error carries no Temporary flag or reports
// itself permanent.
func isTerminal(err error) bool {
	var tmp resilience.TemporaryError
	if errors.As(err, &tmp) {
		return !tmp.Temporary()
	}
	return true
}

func splitBatch(tokens []string, size int) [][]string {
	var chunks [][]string
	for len(tokens) > size {
		chunks = append(chunks, tokens[:size])
		tokens = tokens[size:]
	}
	return append(chunks, tokens)
}

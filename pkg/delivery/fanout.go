package delivery

import (
	"context"
	"errors"

	"github.com/shiftflow/pushkit/pkg/notifications"
)

// ErrNoRecipients is returned when CreateAndDeliver is called with an empty
// recipient list.
var ErrNoRecipients = errors.New("at least one recipient is required")

// Message is the inbound boundary contract for business modules: one push
// message addressed to one or more workers. Each recipient gets their own
// Notification record.
type Message struct {
	Type         notifications.Type
	Priority     notifications.Priority
	Title        string
	Body         string
	SenderID     string
	RecipientIDs []string
	Data         map[string]string
	RequiresAck  bool
	Language     string
}

// FanoutResult aggregates the per-recipient outcomes of one CreateAndDeliver
// call. Delivery failures for individual recipients land in the counters and
// the stored records; they never fail the call itself.
type FanoutResult struct {
	Created       int // notifications persisted
	Skipped       int // recipients with no active device
	Attempted     int
	Accepted      int
	Failed        int
	Blocked       int
	InvalidTokens int
	Notifications []*notifications.Notification
}

// CreateAndDeliver persists one notification per recipient and delivers each
// immediately. The whole call fails on a malformed message (before anything
// is persisted), on a storage fault, or when the provider circuit is open;
// per-recipient provider failures are aggregated into the result instead.
func (e *Engine) CreateAndDeliver(ctx context.Context, msg Message) (*FanoutResult, error) {
	if len(msg.RecipientIDs) == 0 {
		return nil, ErrNoRecipients
	}

	batch := make([]*notifications.Notification, 0, len(msg.RecipientIDs))
	for _, recipient := range msg.RecipientIDs {
		n := notifications.New(msg.Type, msg.Priority, msg.Title, msg.Body, msg.SenderID, recipient)
		n.Data = msg.Data
		n.RequiresAck = msg.RequiresAck
		n.Language = msg.Language
		if err := n.Validate(); err != nil {
			return nil, err
		}
		batch = append(batch, n)
	}

	out := &FanoutResult{Notifications: make([]*notifications.Notification, 0, len(batch))}
	for _, n := range batch {
		if err := e.store.Create(ctx, n); err != nil {
			return out, err
		}
		out.Created++

		res, err := e.Deliver(ctx, n.ID)
		if err != nil && !errors.Is(err, ErrDeliveryFailed) {
			// Storage faults and an open circuit hit every remaining
			// recipient the same way, so the loop stops here.
			return out, err
		}

		out.Attempted += res.Attempted
		out.Accepted += res.Accepted
		out.Failed += res.Failed
		out.Blocked += res.Blocked
		out.InvalidTokens += res.InvalidTokens
		if res.NoDevice {
			out.Skipped++
		}

		if stored, getErr := e.store.Get(ctx, n.ID); getErr == nil {
			n = stored
		}
		out.Notifications = append(out.Notifications, n)
	}
	return out, nil
}

package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftflow/pushkit/pkg/validator"
)

// Type is the closed set of business events that produce a push message.
type Type string

const (
	TypeTaskUpdate       Type = "task_update"
	TypeSiteChange       Type = "site_change"
	TypeAttendanceAlert  Type = "attendance_alert"
	TypeApprovalStatus   Type = "approval_status"
	TypeOvertimeRequired Type = "overtime_required"
	TypeAnnouncement     Type = "announcement"
)

// Types lists every known notification type.
var Types = []Type{
	TypeTaskUpdate,
	TypeSiteChange,
	TypeAttendanceAlert,
	TypeApprovalStatus,
	TypeOvertimeRequired,
	TypeAnnouncement,
}

// Priority orders notifications from low to critical. It is immutable after
// creation and drives both the provider urgency tier and the retry budget.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a priority name to its Priority value.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// AttemptBudget returns the per-delivery attempt budget: critical and high
// priorities get up to 3 attempts, normal and low get one retry.
func (p Priority) AttemptBudget() int {
	if p >= PriorityHigh {
		return 3
	}
	return 2
}

// Status tracks delivery progress. Transitions are monotonic except
// FAILED -> PENDING, which only the monitor's re-queue path performs and only
// below the attempt budget.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusSent || to == StatusFailed
	case StatusSent:
		return to == StatusDelivered || to == StatusFailed
	case StatusFailed:
		return to == StatusPending // monitor re-queue only
	default:
		return false
	}
}

// Notification is one logical message to one recipient. Never deleted;
// retained for audit and history.
type Notification struct {
	ID            string            `json:"id" bson:"_id"`
	Type          Type              `json:"type" bson:"type"`
	Priority      Priority          `json:"priority" bson:"priority"`
	Title         string            `json:"title" bson:"title"`
	Body          string            `json:"body" bson:"body"`
	SenderID      string            `json:"sender_id" bson:"sender_id"`
	RecipientID   string            `json:"recipient_id" bson:"recipient_id"`
	Data          map[string]string `json:"data,omitempty" bson:"data,omitempty"` // structured action payload
	RequiresAck   bool              `json:"requires_ack" bson:"requires_ack"`
	Language      string            `json:"language,omitempty" bson:"language,omitempty"`
	Status        Status            `json:"status" bson:"status"`
	Attempts      int               `json:"attempts" bson:"attempts"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty" bson:"last_attempt_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" bson:"updated_at"`
}

// New constructs a PENDING notification for one recipient.
func New(typ Type, priority Priority, title, body, senderID, recipientID string) *Notification {
	now := time.Now()
	return &Notification{
		ID:          uuid.NewString(),
		Type:        typ,
		Priority:    priority,
		Title:       title,
		Body:        body,
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// typeNames is Types as plain strings for validation messages.
func typeNames() []string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return names
}

// Validate checks the notification shape. The monitor's health check also
// uses it as a validate-only construction probe.
func (n *Notification) Validate() error {
	rules := []validator.Rule{
		validator.Required("title", n.Title),
		validator.Required("body", n.Body),
		validator.Required("recipient_id", n.RecipientID),
		validator.InListString("type", string(n.Type), typeNames()),
		validator.MaxLen("title", n.Title, 200),
		validator.MaxLen("body", n.Body, 4000),
	}
	rules = append(rules, validator.Rule{
		Check: n.Priority.Valid,
		Error: validator.ValidationError{Field: "priority", Message: "must be a known priority"},
	})
	return validator.Apply(rules...)
}

package auditlog

import (
	"fmt"
	"time"
)

// EventType classifies an audit record.
type EventType string

const (
	EventDeviceRegistered   EventType = "device.registered"
	EventDeviceDeactivated  EventType = "device.deactivated"
	EventDeliveryDelivered  EventType = "delivery.delivered"
	EventDeliveryFailed     EventType = "delivery.failed"
	EventDeliverySkipped    EventType = "delivery.skipped"
	EventDeliveryUnknown    EventType = "delivery.unknown_error"
	EventPerformanceMetric  EventType = "performance.metric"
	EventPerformanceAlert   EventType = "performance.alert"
	EventOptimizationSweep  EventType = "optimization.sweep"
	EventNotificationQueued EventType = "notification.requeued"
)

// Record is a single audit trail entry. One record is written per delivery
// attempt, so a notification retried twice leaves three records.
type Record struct {
	ID             string         `json:"id" bson:"_id"`
	Event          EventType      `json:"event" bson:"event"`
	WorkerID       string         `json:"worker_id,omitempty" bson:"worker_id,omitempty"`
	NotificationID string         `json:"notification_id,omitempty" bson:"notification_id,omitempty"`
	Error          string         `json:"error,omitempty" bson:"error,omitempty"`
	Duration       time.Duration  `json:"duration,omitempty" bson:"duration,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
}

// Validate checks the record carries the required fields.
func (r *Record) Validate() error {
	if r.Event == "" {
		return fmt.Errorf("%w: event is required", ErrInvalidRecord)
	}
	return nil
}

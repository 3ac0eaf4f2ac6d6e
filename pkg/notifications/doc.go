// Package notifications defines the notification model: business types with
// their presentation channels, the immutable priority tiers that drive retry
// budgets and provider urgency, and the delivery status machine.
//
// Status moves PENDING -> SENT -> DELIVERED or FAILED. The only backwards
// edge is FAILED -> PENDING, reserved for the monitor's re-queue sweep and
// gated on the attempt budget. Notifications are never deleted.
package notifications

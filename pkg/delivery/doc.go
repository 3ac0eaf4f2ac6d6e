// Package delivery is the push delivery engine.
//
// Deliver resolves the recipient's active devices, applies the per-device
// preference gates, and pushes the payload through the resilient executor
// under the priority's attempt budget. Every provider attempt updates the
// notification status, the device statistics, and the audit trail, so a
// retried delivery is fully reconstructable afterwards.
//
// Terminal provider errors deactivate the offending token immediately.
// Multicast fan-out splits above the provider batch limit and retries only
// the tokens that failed transiently.
package delivery

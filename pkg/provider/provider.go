package provider

import (
	"context"
	"time"
)

// MaxBatchTokens is the largest number of device tokens the provider accepts
// in a single multicast call. Callers must split larger batches.
const MaxBatchTokens = 500

// Urgency is the provider-side delivery tier. Internal priorities map onto it
// in the delivery engine: CRITICAL/HIGH become UrgencyHigh, NORMAL/LOW
// UrgencyNormal.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyNormal Urgency = "normal"
)

// Payload is the platform-facing message body sent to one or many tokens.
type Payload struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Urgency   Urgency           `json:"urgency"`
	ChannelID string            `json:"channel_id,omitempty"` // android notification channel / ios category
	Data      map[string]string `json:"data,omitempty"`       // structured action payload
	SentAt    time.Time         `json:"sent_at"`              // server timestamp
}

// TokenResult is the per-token outcome of a multicast call.
type TokenResult struct {
	Token     string
	MessageID string
	Err       *Error
}

// BatchResult aggregates a multicast call.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Results      []TokenResult
}

// Sender is the outbound boundary to the remote push provider. Implementations
// return *Error so callers can classify failures; any other error type is
// treated as terminal by the retry layer.
type Sender interface {
	// SendOne delivers the payload to a single device token and returns the
	// provider-assigned message id.
	SendOne(ctx context.Context, token string, payload Payload) (string, error)

	// SendBatch delivers one payload to up to MaxBatchTokens tokens in a
	// single call. Per-token failures are reported in the result, not as the
	// returned error; the error is non-nil only when the whole call failed.
	SendBatch(ctx context.Context, tokens []string, payload Payload) (BatchResult, error)
}

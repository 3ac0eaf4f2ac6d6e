package provider

import (
	"context"
	"fmt"
	"sync"
)

// FakeSender is an in-memory Sender for tests and local development.
// Responses can be scripted per token; unscripted tokens succeed.
type FakeSender struct {
	mu       sync.Mutex
	failures map[string][]*Error // per-token queue of scripted failures
	sent     []SentMessage
	seq      int
}

// SentMessage records one successful fake delivery.
type SentMessage struct {
	Token   string
	Payload Payload
	Batch   bool
}

// NewFakeSender creates an empty fake.
func NewFakeSender() *FakeSender {
	return &FakeSender{failures: make(map[string][]*Error)}
}

// FailWith scripts the next calls for token to fail with the given code, one
// failure per queued entry. Once the queue drains the token succeeds again.
func (f *FakeSender) FailWith(token string, code ErrorCode, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < times; i++ {
		f.failures[token] = append(f.failures[token], NewError(code, "scripted failure"))
	}
}

// Sent returns a copy of all successfully delivered messages.
func (f *FakeSender) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentTo returns the number of successful deliveries to a token.
func (f *FakeSender) SentTo(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.Token == token {
			n++
		}
	}
	return n
}

func (f *FakeSender) nextFailure(token string) *Error {
	queue := f.failures[token]
	if len(queue) == 0 {
		return nil
	}
	next := queue[0]
	f.failures[token] = queue[1:]
	return next
}

// SendOne implements Sender.
func (f *FakeSender) SendOne(ctx context.Context, token string, payload Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.nextFailure(token); err != nil {
		return "", err
	}

	f.seq++
	f.sent = append(f.sent, SentMessage{Token: token, Payload: payload})
	return fmt.Sprintf("fake-msg-%d", f.seq), nil
}

// SendBatch implements Sender.
func (f *FakeSender) SendBatch(ctx context.Context, tokens []string, payload Payload) (BatchResult, error) {
	if len(tokens) > MaxBatchTokens {
		return BatchResult{}, NewError(CodeInternal, "batch exceeds provider limit")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := BatchResult{Results: make([]TokenResult, 0, len(tokens))}
	for _, token := range tokens {
		tr := TokenResult{Token: token}
		if err := f.nextFailure(token); err != nil {
			tr.Err = err
			out.FailureCount++
		} else {
			f.seq++
			tr.MessageID = fmt.Sprintf("fake-msg-%d", f.seq)
			f.sent = append(f.sent, SentMessage{Token: token, Payload: payload, Batch: true})
			out.SuccessCount++
		}
		out.Results = append(out.Results, tr)
	}
	return out, nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config describes the remote push endpoint. The wire contract mirrors the
// common HTTP push APIs: JSON POST per message, a batch endpoint for
// multicast, bearer-token auth.
type Config struct {
	Endpoint       string        `env:"PUSH_PROVIDER_ENDPOINT,required"`                // Endpoint is the base URL of the provider's send API.
	APIKey         string        `env:"PUSH_PROVIDER_API_KEY,required"`                 // APIKey is the server key sent as a bearer token.
	AttemptTimeout time.Duration `env:"PUSH_PROVIDER_ATTEMPT_TIMEOUT" envDefault:"10s"` // AttemptTimeout bounds a single send attempt.
}

// HTTPSender implements Sender over the provider's REST API.
// Zero value is not usable; use NewHTTPSender.
type HTTPSender struct {
	cfg    Config
	client *http.Client
}

// NewHTTPSender creates a sender with connection pooling tuned for many
// short-lived calls against a single provider host.
func NewHTTPSender(cfg Config) *HTTPSender {
	return &HTTPSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.AttemptTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewHTTPSenderWithClient allows a custom HTTP client, mainly for tests.
func NewHTTPSenderWithClient(cfg Config, client *http.Client) *HTTPSender {
	if client == nil {
		return NewHTTPSender(cfg)
	}
	return &HTTPSender{cfg: cfg, client: client}
}

type sendRequest struct {
	Token   string   `json:"token,omitempty"`
	Tokens  []string `json:"tokens,omitempty"`
	Payload Payload  `json:"payload"`
}

type sendResponse struct {
	MessageID string            `json:"message_id"`
	ErrorCode string            `json:"error_code,omitempty"`
	Results   []sendResultEntry `json:"results,omitempty"`
}

type sendResultEntry struct {
	Token     string `json:"token"`
	MessageID string `json:"message_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// SendOne implements Sender.
func (s *HTTPSender) SendOne(ctx context.Context, token string, payload Payload) (string, error) {
	resp, err := s.post(ctx, "/v1/messages:send", sendRequest{Token: token, Payload: payload})
	if err != nil {
		return "", err
	}
	if resp.ErrorCode != "" {
		return "", NewError(parseCode(resp.ErrorCode), "send rejected")
	}
	return resp.MessageID, nil
}

// SendBatch implements Sender.
func (s *HTTPSender) SendBatch(ctx context.Context, tokens []string, payload Payload) (BatchResult, error) {
	if len(tokens) > MaxBatchTokens {
		return BatchResult{}, NewError(CodeInternal, fmt.Sprintf("batch of %d exceeds provider limit %d", len(tokens), MaxBatchTokens))
	}

	resp, err := s.post(ctx, "/v1/messages:sendMulticast", sendRequest{Tokens: tokens, Payload: payload})
	if err != nil {
		return BatchResult{}, err
	}

	out := BatchResult{Results: make([]TokenResult, 0, len(resp.Results))}
	for _, r := range resp.Results {
		tr := TokenResult{Token: r.Token, MessageID: r.MessageID}
		if r.ErrorCode != "" {
			tr.Err = NewError(parseCode(r.ErrorCode), "send rejected")
			out.FailureCount++
		} else {
			out.SuccessCount++
		}
		out.Results = append(out.Results, tr)
	}
	return out, nil
}

func (s *HTTPSender) post(ctx context.Context, path string, reqBody sendRequest) (*sendResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewError(CodeInternal, err.Error())
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(CodeInternal, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		// Caller-visible timeouts are transient for retry purposes.
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, WrapError(CodeTimeout, err)
		}
		return nil, WrapError(CodeServerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*64))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewError(statusToCode(resp.StatusCode), fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(CodeUnknown, err)
	}
	return &parsed, nil
}

// statusToCode maps the provider's HTTP statuses onto the error taxonomy.
func statusToCode(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound, status == http.StatusBadRequest:
		return CodeInvalidToken
	case status == http.StatusForbidden:
		return CodeSenderMismatch
	case status == http.StatusTooManyRequests:
		return CodeQuotaExceeded
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway:
		return CodeServerUnavailable
	case status >= 500:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// parseCode normalizes a provider error-code string into the closed set.
func parseCode(raw string) ErrorCode {
	switch ErrorCode(raw) {
	case CodeInvalidToken, CodeSenderMismatch, CodeServerUnavailable,
		CodeTimeout, CodeQuotaExceeded, CodeInternal:
		return ErrorCode(raw)
	default:
		return CodeUnknown
	}
}

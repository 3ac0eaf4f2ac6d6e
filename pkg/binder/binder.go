// Package binder decodes HTTP request bodies into typed values. The ops API
// is JSON-only, so a single strict JSON binder covers it: content type is
// enforced, bodies are size-limited, and unknown fields are rejected.
package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// MaxJSONSize caps accepted request bodies at 1MB. Notification payloads are
// small; anything larger is a client bug.
const MaxJSONSize = 1 << 20

var (
	// ErrMissingContentType indicates the request carried no Content-Type.
	ErrMissingContentType = errors.New("missing content type")

	// ErrUnsupportedMediaType indicates a non-JSON content type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidJSON indicates the body could not be decoded.
	ErrInvalidJSON = errors.New("invalid JSON body")

	// ErrBodyTooLarge indicates the body exceeded MaxJSONSize.
	ErrBodyTooLarge = errors.New("request body too large")
)

// JSON decodes the request body into v. Unknown fields fail the decode so
// client typos surface as 400s instead of silently dropped options.
func JSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: got %q, expected application/json", ErrUnsupportedMediaType, ct)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxJSONSize+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(body) > MaxJSONSize {
		return ErrBodyTooLarge
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

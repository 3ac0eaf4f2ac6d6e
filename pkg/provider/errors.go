package provider

import (
	"errors"
	"fmt"
)

// ErrorCode is the provider's closed error taxonomy. Unknown provider
// responses map to CodeUnknown rather than inventing new codes.
type ErrorCode string

const (
	CodeInvalidToken      ErrorCode = "invalid-registration-token"
	CodeSenderMismatch    ErrorCode = "sender-id-mismatch"
	CodeServerUnavailable ErrorCode = "server-unavailable"
	CodeTimeout           ErrorCode = "timeout"
	CodeQuotaExceeded     ErrorCode = "quota-exceeded"
	CodeInternal          ErrorCode = "internal-error"
	CodeUnknown           ErrorCode = "unknown"
)

// Error is the typed error returned by provider calls.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

// NewError builds a provider error with the given code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a provider error around an underlying transport failure.
func WrapError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Message: cause.Error(), cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("push provider: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Temporary reports whether the error is worth retrying. Invalid tokens and
// sender mismatches are permanent token conditions; everything else,
// including quota exhaustion and unknown codes, is treated as transient.
// Unknown-as-transient is a deliberate policy: the consecutive-failure
// counter on the token still catches permanently-bad tokens that hide behind
// generic codes.
func (e *Error) Temporary() bool {
	switch e.Code {
	case CodeInvalidToken, CodeSenderMismatch:
		return false
	default:
		return true
	}
}

// ShouldDeactivate reports whether err identifies the token itself as
// permanently unusable, which obliges the registry to deactivate it.
func ShouldDeactivate(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Code == CodeInvalidToken || pe.Code == CodeSenderMismatch
}

// CodeOf extracts the provider error code, or CodeUnknown when err is not a
// provider error.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

package resilience

import "errors"

// Domain errors for resilient remote calls, designed for errors.Is checks.
// Callers distinguish "we did not try" (ErrCircuitOpen) from "we tried and
// failed" (ErrAttemptsExhausted) so monitoring can tell the two apart.
var (
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")
	ErrNilOperation      = errors.New("nil operation")
)

// IsCircuitOpen reports whether err indicates the breaker rejected the call
// before any attempt was made.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// TemporaryError is implemented by errors that describe a transient condition
// worth retrying. Errors that do not implement it are treated as terminal.
type TemporaryError interface {
	error
	Temporary() bool
}

// isRetryable reports whether err is worth another attempt.
func isRetryable(err error) bool {
	var te TemporaryError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}

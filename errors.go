package apiguard

import (
	"errors"
	"fmt"
	"time"
)

// Error type constants used in GuardError.Type.
const (
	ErrorTypeRateLimit     = "RateLimit"
	ErrorTypeNetwork       = "Network"
	ErrorTypeServer        = "Server"
	ErrorTypeClient        = "Client"
	ErrorTypeTimeout       = "Timeout"
	ErrorTypeSerialization = "Serialization"
	ErrorTypeValidation    = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrRateLimited is returned when a request is denied admission.
	ErrRateLimited = errors.New("apiguard: rate limited")

	// ErrStoreUnavailable indicates the shared store could not be reached.
	// It is logged and recovered internally; it never crosses the layer's
	// boundary as a failure of the guarded call.
	ErrStoreUnavailable = errors.New("apiguard: store unavailable")

	// ErrNotFound is returned by Store implementations on a missing key.
	ErrNotFound = errors.New("apiguard: not found")
)

// GuardError is the error type surfaced by the layer for failures it owns
// (admission denials, exhausted retries over HTTP statuses, invalid
// configuration). Failures of the wrapped operation itself are surfaced
// unwrapped so callers keep the original error identity.
type GuardError struct {
	Type       string
	Message    string
	Cause      error
	StatusCode int
	Endpoint   string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *GuardError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *GuardError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is match admission denials against ErrRateLimited.
func (e *GuardError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == ErrRateLimited && e.Type == ErrorTypeRateLimit
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Network errors, timeouts, 5xx responses and 429
// are transient; other 4xx client errors and validation errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrStoreUnavailable) {
		return true
	}

	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		switch guardErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit:
			return true
		case ErrorTypeClient:
			return guardErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}

func newRateLimitError(key string, retryAfter time.Duration) *GuardError {
	return &GuardError{
		Type:       ErrorTypeRateLimit,
		Message:    fmt.Sprintf("too many requests for %q", key),
		RetryAfter: retryAfter,
	}
}

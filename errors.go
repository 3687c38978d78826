package kraconnect

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the fixed failure taxonomy every error is routed through.
type ErrorKind string

const (
	KindValidation     ErrorKind = "ValidationError"
	KindAuthentication ErrorKind = "AuthenticationError"
	KindTimeout        ErrorKind = "TimeoutError"
	KindRateLimit      ErrorKind = "RateLimitExceeded"
	KindService        ErrorKind = "ServiceError"
	KindNetwork        ErrorKind = "NetworkError"
	KindCanceled       ErrorKind = "CanceledError"
)

// Sentinel errors for common failure scenarios
var (
	// ErrRateLimited matches any error of kind KindRateLimit via errors.Is.
	ErrRateLimited = errors.New("kraconnect: rate limited")

	// ErrClientClosed is the cause of failures for operations issued to, or
	// still pending in, a closed Client.
	ErrClientClosed = errors.New("kraconnect: client closed")

	// ErrCircuitOpen is the cause of failures rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("kraconnect: circuit open")

	// ErrRetryBudgetExceeded is logged when the shared retry budget vetoes a retry.
	ErrRetryBudgetExceeded = errors.New("kraconnect: retry budget exceeded")
)

// Error is a classified failure. Only the fields relevant to Kind are set.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// ValidationError
	Field  string
	Reason string

	// ServiceError
	StatusCode int

	// TimeoutError
	Elapsed time.Duration

	// RateLimitExceeded
	RetryAfter time.Duration

	// Diagnostic context, filled in by the client.
	Operation   string
	Fingerprint string
	RequestID   string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
}

// NewValidationError reports a caller input defect detected before any network call.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Field:   field,
		Reason:  reason,
	}
}

// NewAuthenticationError reports rejected credentials.
func NewAuthenticationError(message string) *Error {
	if message == "" {
		message = "authentication failed"
	}
	return &Error{Kind: KindAuthentication, Message: message}
}

// NewTimeoutError reports an operation that did not finish within elapsed.
func NewTimeoutError(elapsed time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("timed out after %v", elapsed),
		Elapsed: elapsed,
	}
}

// NewRateLimitError reports a denied admission; retryAfter is a hint for the caller.
func NewRateLimitError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    fmt.Sprintf("rate limit exceeded, retry after %v", retryAfter),
		RetryAfter: retryAfter,
	}
}

// NewServiceError reports a failure answered by the remote service.
func NewServiceError(statusCode int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("service error (status %d)", statusCode)
	}
	return &Error{Kind: KindService, Message: message, StatusCode: statusCode}
}

// NewNetworkError reports a transport level failure.
func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Cause: cause}
}

func newCanceledError(cause error) *Error {
	return &Error{Kind: KindCanceled, Message: "operation canceled", Cause: cause}
}

// Retryable reports whether the kind of failure may succeed when attempted again.
// RateLimitExceeded is never retryable; callers act on RetryAfter.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindService:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	default:
		return false
	}
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error of the same kind, and ErrRateLimited for rate limit failures.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrRateLimited {
		return e.Kind == KindRateLimit
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Operation != "" {
		info += fmt.Sprintf("Operation: %s\n", e.Operation)
	}
	if e.Fingerprint != "" {
		info += fmt.Sprintf("Fingerprint: %s\n", e.Fingerprint)
	}
	if e.Field != "" {
		info += fmt.Sprintf("Field: %s\n", e.Field)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		info += fmt.Sprintf("Retry After: %v\n", e.RetryAfter)
	}
	if e.Elapsed > 0 {
		info += fmt.Sprintf("Elapsed: %v\n", e.Elapsed)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// clone returns a shallow copy so diagnostic context can be attached without
// mutating an error another goroutine may hold.
func (e *Error) clone() *Error {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// IsRetryable classifies err and reports whether it may be retried.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

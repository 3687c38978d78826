package kraconnect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"time"
)

// DefaultRetryAfter is assumed when a 429 response carries no usable Retry-After.
const DefaultRetryAfter = 60 * time.Second

// StatusError is the raw failure a transport returns for a non-2xx answer.
type StatusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Classify maps any failure onto exactly one ErrorKind. It is pure and total:
// nil maps to nil, an *Error anywhere in the chain is returned unchanged, and
// unrecognised failures become a permanent ServiceError with status 0.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClientClosed) {
		return newCanceledError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "deadline exceeded", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "network timeout", Cause: err}
	}

	if errors.Is(err, ErrCircuitOpen) {
		return &Error{Kind: KindService, Message: "circuit breaker is open", Cause: err}
	}

	if isNetworkFailure(err) {
		return NewNetworkError("network request failed", err)
	}

	return &Error{Kind: KindService, Message: "unexpected failure", Cause: err}
}

func classifyStatus(se *StatusError) *Error {
	switch {
	case se.StatusCode == 401 || se.StatusCode == 403:
		e := NewAuthenticationError(se.Message)
		e.Cause = se
		return e
	case se.StatusCode == 429:
		retryAfter := se.RetryAfter
		if retryAfter <= 0 {
			retryAfter = DefaultRetryAfter
		}
		e := NewRateLimitError(retryAfter)
		e.Cause = se
		return e
	default:
		e := NewServiceError(se.StatusCode, se.Message)
		e.Cause = se
		return e
	}
}

func isNetworkFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

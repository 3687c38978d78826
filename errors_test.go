package kraconnect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := NewServiceError(503, "unavailable")

	expectedMsg := "ServiceError: unavailable"
	if err.Error() != expectedMsg {
		t.Errorf("Expected '%s', got '%s'", expectedMsg, err.Error())
	}

	err.Cause = errors.New("underlying error")
	err.RequestID = "req_1"
	err.Attempt = 3
	err.MaxAttempts = 3

	expected := "[req_1] ServiceError: unavailable (underlying error) (attempt 3/3)"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("original error")
	err := NewNetworkError("network request failed", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Expected unwrapped error to be %v, got %v", cause, unwrapped)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestErrorIs(t *testing.T) {
	rl := NewRateLimitError(time.Minute)

	assert.True(t, errors.Is(rl, ErrRateLimited))
	assert.False(t, errors.Is(NewServiceError(500, ""), ErrRateLimited))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", rl), &Error{Kind: KindRateLimit}))
	assert.False(t, errors.Is(rl, &Error{Kind: KindTimeout}))
}

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"validation", NewValidationError("pin", "bad"), false},
		{"authentication", NewAuthenticationError(""), false},
		{"timeout", NewTimeoutError(time.Second), true},
		{"rate limit", NewRateLimitError(time.Minute), false},
		{"service 500", NewServiceError(500, ""), true},
		{"service 599", NewServiceError(599, ""), true},
		{"service 404", NewServiceError(404, ""), false},
		{"service 0", NewServiceError(0, ""), false},
		{"network", NewNetworkError("down", nil), true},
		{"canceled", newCanceledError(context.Canceled), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorDebugInfo(t *testing.T) {
	err := NewRateLimitError(30 * time.Second)
	err.RequestID = "req_42"
	err.Operation = "pin_verification"

	info := err.DebugInfo()
	for _, want := range []string{"Kind: RateLimitExceeded", "Request ID: req_42", "Operation: pin_verification", "Retry After: 30s"} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo missing %q:\n%s", want, info)
		}
	}
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		status int
	}{
		{"unauthorized", &StatusError{StatusCode: 401}, KindAuthentication, 0},
		{"forbidden", &StatusError{StatusCode: 403}, KindAuthentication, 0},
		{"too many requests", &StatusError{StatusCode: 429}, KindRateLimit, 0},
		{"bad request", &StatusError{StatusCode: 400}, KindService, 400},
		{"server error", &StatusError{StatusCode: 502}, KindService, 502},
		{"deadline", context.DeadlineExceeded, KindTimeout, 0},
		{"net timeout", timeoutNetError{}, KindTimeout, 0},
		{"canceled", context.Canceled, KindCanceled, 0},
		{"client closed", ErrClientClosed, KindCanceled, 0},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindNetwork, 0},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindNetwork, 0},
		{"unexpected eof", io.ErrUnexpectedEOF, KindNetwork, 0},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.kra.go.ke"}, KindNetwork, 0},
		{"url error", &url.Error{Op: "Post", URL: "https://x", Err: errors.New("boom")}, KindNetwork, 0},
		{"url deadline", &url.Error{Op: "Post", URL: "https://x", Err: context.DeadlineExceeded}, KindTimeout, 0},
		{"circuit open", ErrCircuitOpen, KindService, 0},
		{"unknown", errors.New("something odd"), KindService, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.status, got.StatusCode)
		})
	}
}

func TestClassifyNilAndPassthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))

	original := NewValidationError("pin", "bad")
	assert.Same(t, original, Classify(fmt.Errorf("wrapped: %w", original)))
}

func TestClassifyRateLimitRetryAfter(t *testing.T) {
	got := Classify(&StatusError{StatusCode: 429, RetryAfter: 5 * time.Second})
	assert.Equal(t, 5*time.Second, got.RetryAfter)

	got = Classify(&StatusError{StatusCode: 429})
	assert.Equal(t, DefaultRetryAfter, got.RetryAfter)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 503}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: 429}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: 401}))
	assert.False(t, IsRetryable(errors.New("unknown")))
	assert.False(t, IsRetryable(nil))
}

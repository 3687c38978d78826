package kraconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport performs the remote call for one attempt of an Operation and
// returns the raw response payload. Failures are classified by the caller.
type Transport interface {
	Send(ctx context.Context, op Operation) (json.RawMessage, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, op Operation) (json.RawMessage, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, op Operation) (json.RawMessage, error) {
	return f(ctx, op)
}

// Middleware wraps the outbound HTTP exchange of an HTTPTransport.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const maxResponseBody = 10 << 20

// HTTPTransport talks JSON over HTTP to the tax authority API.
type HTTPTransport struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	middleware []Middleware
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithTransportHTTPClient replaces the underlying *http.Client.
func WithTransportHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.httpClient = client
	}
}

// WithTransportUserAgent sets the User-Agent header.
func WithTransportUserAgent(userAgent string) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = userAgent
	}
}

// WithTransportMiddleware appends middleware; the first one added runs outermost.
func WithTransportMiddleware(middleware ...Middleware) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.middleware = append(t.middleware, middleware...)
	}
}

// NewHTTPTransport creates a transport rooted at baseURL that authenticates
// with apiKey as a bearer token.
func NewHTTPTransport(baseURL, apiKey string, opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userAgent:  DefaultUserAgent(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, op Operation) (json.RawMessage, error) {
	req, err := t.newRequest(ctx, op)
	if err != nil {
		return nil, err
	}

	resp, err := t.executeMiddleware(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusErrorFromResponse(resp, body)
	}
	if !json.Valid(body) {
		return nil, NewServiceError(0, "malformed response payload")
	}
	return json.RawMessage(body), nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, op Operation) (*http.Request, error) {
	method, path, payload := route(op)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return req, nil
}

func (t *HTTPTransport) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(t.middleware) == 0 {
		return t.httpClient.Do(req)
	}

	current := RoundTripperFunc(t.httpClient.Do)

	for i := len(t.middleware) - 1; i >= 0; i-- {
		middleware := t.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func route(op Operation) (method, path string, payload map[string]string) {
	switch op.Kind() {
	case PinVerification:
		return http.MethodPost, "/verify-pin", map[string]string{"pin": op.Param(ParamPIN)}
	case TccVerification:
		return http.MethodPost, "/verify-tcc", map[string]string{"tcc": op.Param(ParamTCC)}
	case EslipValidation:
		return http.MethodPost, "/validate-eslip", map[string]string{"slip_number": op.Param(ParamSlipNumber)}
	case NilReturnFiling:
		return http.MethodPost, "/file-nil-return", map[string]string{
			"pin":           op.Param(ParamPIN),
			"period":        op.Param(ParamPeriod),
			"obligation_id": op.Param(ParamObligationID),
		}
	case TaxpayerDetailsLookup:
		return http.MethodGet, "/taxpayer-details/" + url.PathEscape(op.Param(ParamPIN)), nil
	default:
		return http.MethodPost, "/" + strings.ReplaceAll(op.Kind().String(), "_", "-"), op.Params()
	}
}

func statusErrorFromResponse(resp *http.Response, body []byte) *StatusError {
	se := &StatusError{StatusCode: resp.StatusCode, Body: body}

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		se.Message = payload.Message
	} else if resp.StatusCode >= 500 {
		se.Message = fmt.Sprintf("Server error: %d", resp.StatusCode)
	} else {
		se.Message = fmt.Sprintf("Client error: %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		if se.RetryAfter == 0 {
			se.RetryAfter = DefaultRetryAfter
		}
	}
	return se
}

// parseRetryAfter accepts delta-seconds or an HTTP date, capped at one hour.
// Unusable values yield 0.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > time.Hour {
			return time.Hour
		}
		if delay > 0 {
			return delay
		}
	}

	return 0
}

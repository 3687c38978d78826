package kraconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func newOptionsClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	client, err := New(append([]Option{WithAPIKey("test-key")}, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestWithMaxAttempts(t *testing.T) {
	client := newOptionsClient(t, WithMaxAttempts(5))

	if client.retry.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts=5, got %d", client.retry.MaxAttempts)
	}
}

func TestWithBackoffSettings(t *testing.T) {
	client := newOptionsClient(t,
		WithInitialBackoff(200*time.Millisecond),
		WithMaxBackoff(20*time.Second),
		WithBackoffMultiplier(3),
		WithBackoffStrategy(DecorrelatedJitter))

	if client.retry.InitialDelay != 200*time.Millisecond {
		t.Errorf("Expected InitialDelay=200ms, got %v", client.retry.InitialDelay)
	}
	if client.retry.MaxDelay != 20*time.Second {
		t.Errorf("Expected MaxDelay=20s, got %v", client.retry.MaxDelay)
	}
	if client.retry.Multiplier != 3 {
		t.Errorf("Expected Multiplier=3, got %f", client.retry.Multiplier)
	}
	if client.retry.Strategy != DecorrelatedJitter {
		t.Errorf("Expected DecorrelatedJitter strategy, got %v", client.retry.Strategy)
	}
}

func TestWithJitterClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0.3, 0.3},
		{4, 1},
	}

	for _, tt := range tests {
		client := newOptionsClient(t, WithJitter(tt.in))
		if client.config.RetryJitter != tt.want {
			t.Errorf("WithJitter(%v): expected %v, got %v", tt.in, tt.want, client.config.RetryJitter)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	client := newOptionsClient(t, WithTimeout(5*time.Second))

	if client.config.RequestTimeout != 5*time.Second {
		t.Errorf("Expected timeout=5s, got %v", client.config.RequestTimeout)
	}
}

func TestWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "from-config"
	cfg.CacheEnabled = false

	client, err := New(WithConfig(cfg), WithMaxAttempts(2))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer client.Close(context.Background())

	if client.config.APIKey != "from-config" {
		t.Errorf("Expected API key from config, got %q", client.config.APIKey)
	}
	if client.config.RetryMaxAttempts != 2 {
		t.Errorf("Expected later option to apply on top of config, got %d", client.config.RetryMaxAttempts)
	}
	if _, ok := client.cache.(NopCache); !ok {
		t.Errorf("Expected NopCache when caching is disabled, got %T", client.cache)
	}
}

func TestWithCacheOptions(t *testing.T) {
	client := newOptionsClient(t, WithCache(10*time.Minute))
	if client.memoryCache == nil {
		t.Fatal("Expected in-memory cache")
	}
	if client.config.CacheTTL != 10*time.Minute {
		t.Errorf("Expected CacheTTL=10m, got %v", client.config.CacheTTL)
	}

	custom := NewMemoryCache(10)
	client = newOptionsClient(t, WithCustomCache(custom, time.Minute))
	if client.cache != custom {
		t.Error("Expected custom cache to be used")
	}

	client = newOptionsClient(t, WithoutCache())
	if _, ok := client.cache.(NopCache); !ok {
		t.Errorf("Expected NopCache, got %T", client.cache)
	}
}

func TestWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	client := newOptionsClient(t, WithRedisCache(rdb, time.Minute))
	if _, ok := client.cache.(*RedisCache); !ok {
		t.Fatalf("Expected *RedisCache, got %T", client.cache)
	}
	if client.ownedCloser != nil {
		t.Error("Caller-supplied redis client must not be owned by the client")
	}
}

func TestRedisURLConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	client, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if client.ownedCloser == nil {
		t.Error("Expected client to own the redis cache built from RedisURL")
	}
	if err := client.Close(context.Background()); err != nil {
		t.Errorf("Close() failed: %v", err)
	}

	cfg.RedisURL = "://not a url"
	if _, err := New(WithConfig(cfg)); err == nil {
		t.Error("Expected error for invalid redis URL")
	}
}

func TestWithRateLimitOptions(t *testing.T) {
	client := newOptionsClient(t, WithRateLimit(10, time.Second))
	if _, ok := client.limiter.(*FixedWindowLimiter); !ok {
		t.Errorf("Expected *FixedWindowLimiter, got %T", client.limiter)
	}

	client = newOptionsClient(t, WithTokenBucketRateLimit(10, time.Second))
	if _, ok := client.limiter.(*TokenBucketLimiter); !ok {
		t.Errorf("Expected *TokenBucketLimiter, got %T", client.limiter)
	}

	client = newOptionsClient(t, WithoutRateLimit())
	if _, ok := client.limiter.(UnlimitedLimiter); !ok {
		t.Errorf("Expected UnlimitedLimiter, got %T", client.limiter)
	}

	kind := NewFixedWindowLimiter(1, time.Second)
	client = newOptionsClient(t, WithKindLimiter(TccVerification, kind), WithRateLimitWaitTimeout(time.Second))
	if l, ok := client.limiters.Get(TccVerification); !ok || l != kind {
		t.Error("Expected kind limiter to be registered")
	}
	if client.rateLimitTimeout != time.Second {
		t.Errorf("Expected rate limit wait timeout=1s, got %v", client.rateLimitTimeout)
	}
}

func TestWithCircuitBreaker(t *testing.T) {
	client := newOptionsClient(t, WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3}))

	if client.circuitBreaker == nil {
		t.Fatal("Expected circuit breaker")
	}
	if client.circuitBreaker.config.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold=3, got %d", client.circuitBreaker.config.FailureThreshold)
	}
	if client.circuitBreaker.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("Expected default RecoveryTimeout=60s, got %v", client.circuitBreaker.config.RecoveryTimeout)
	}
}

func TestWithHTTPClientAndMiddleware(t *testing.T) {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	mw := func(req *http.Request, next RoundTripper) (*http.Response, error) { return next.RoundTrip(req) }

	client := newOptionsClient(t, WithHTTPClient(httpClient), WithMiddleware(mw), WithUserAgent("billing/2.0"))

	transport, ok := client.transport.(*HTTPTransport)
	if !ok {
		t.Fatalf("Expected *HTTPTransport, got %T", client.transport)
	}
	if transport.httpClient != httpClient {
		t.Error("Expected custom HTTP client")
	}
	if len(transport.middleware) != 1 {
		t.Errorf("Expected 1 middleware, got %d", len(transport.middleware))
	}
	if transport.userAgent != "billing/2.0" {
		t.Errorf("Expected user agent billing/2.0, got %q", transport.userAgent)
	}
}

func TestWithMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	client := newOptionsClient(t, WithMetrics(registry))

	if client.metrics == nil {
		t.Fatal("Expected metrics collector")
	}

	shared := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client = newOptionsClient(t, WithMetricsCollector(shared))
	if client.metrics != shared {
		t.Error("Expected shared metrics collector")
	}
}

func TestWithDebugOptions(t *testing.T) {
	logger := &recordingLogger{}
	client := newOptionsClient(t, WithDebug(), WithLogger(logger))
	if !client.debug.Enabled {
		t.Error("Expected debug enabled")
	}
	if client.logger != logger {
		t.Error("Expected custom logger")
	}

	client = newOptionsClient(t, WithDefaultLogger("debug"))
	if !client.debug.Enabled || client.logger == nil {
		t.Error("Expected default logger with debug enabled")
	}

	client = newOptionsClient(t, WithDebugConfig(nil))
	if client.debug == nil || client.debug.Enabled {
		t.Error("Expected WithDebugConfig(nil) to restore the disabled default")
	}

	client = newOptionsClient(t, WithRequestIDGenerator(func() string { return "fixed" }))
	if client.debug.RequestIDGen() != "fixed" {
		t.Error("Expected custom request ID generator")
	}
}

func TestLogLevelEnablesDefaultLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.LogLevel = "warn"

	client, err := New(WithConfig(cfg))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer client.Close(context.Background())

	if client.logger == nil || !client.debug.Enabled {
		t.Error("Expected LogLevel to install the default logger")
	}
}

func TestWithDeduplication(t *testing.T) {
	client := newOptionsClient(t)
	if client.dedup == nil {
		t.Error("Expected deduplication on by default")
	}

	client = newOptionsClient(t, WithDeduplication(false))
	if client.dedup != nil {
		t.Error("Expected deduplication disabled")
	}
}

func TestWithBatchOptions(t *testing.T) {
	client := newOptionsClient(t, WithMaxConcurrency(4), WithBatchTimeout(time.Second))

	if client.maxConcurrency != 4 {
		t.Errorf("Expected maxConcurrency=4, got %d", client.maxConcurrency)
	}
	if client.batchTimeout != time.Second {
		t.Errorf("Expected batchTimeout=1s, got %v", client.batchTimeout)
	}
}

func TestValidateConfigurationAggregatesErrors(t *testing.T) {
	_, err := New(
		WithTimeout(0),
		WithMaxAttempts(0),
		WithMaxConcurrency(-1),
		WithBatchTimeout(-time.Second),
		WithKindCacheTTL(PinVerification, 0),
		WithCacheCondition(nil),
		WithDebug(),
	)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	var kerr *Error
	if !errors.As(err, &kerr) || kerr.Kind != KindValidation {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"API key is required",
		"request timeout must be positive",
		"retry max attempts must be at least 1",
		"max concurrency must be non-negative",
		"batch timeout must be non-negative",
		"cache TTL for pin_verification must be positive",
		"cache condition cannot be nil",
		"logger must be set when debug is enabled",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected error to mention %q, got %s", want, msg)
		}
	}
}

func TestValidateConfigurationRejectsBadComponents(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"nil middleware", WithMiddleware(Middleware(nil)), "middleware[0] cannot be nil"},
		{"nil kind limiter", WithKindLimiter(EslipValidation, nil), "limiter for eslip_validation cannot be nil"},
		{"retry budget", WithRetryBudget(0, time.Second), "retry budget needs positive max retries and window"},
		{"breaker", WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: -1}), "FailureThreshold must be positive"},
		{"huge backoff", WithInitialBackoff(time.Hour), "initialBackoff > 10m"},
		{"rate limit", WithRateLimit(0, time.Second), "rate limit max requests must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithAPIKey("test-key"), tt.opt)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got %s", tt.want, err.Error())
			}
		})
	}
}

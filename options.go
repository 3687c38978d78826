package kraconnect

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// WithConfig replaces the whole configuration. Later options still apply on top.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.config = cfg
	}
}

// WithAPIKey sets the bearer token sent to the API.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.config.APIKey = key
	}
}

// WithBaseURL sets the API root.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.config.BaseURL = url
	}
}

// WithUserAgent sets the User-Agent of the built-in HTTP transport.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.config.UserAgent = userAgent
	}
}

// WithTimeout sets the per-attempt request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.RequestTimeout = d
	}
}

// WithMaxAttempts sets how many times an operation is tried, including the first try.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.config.RetryMaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.config.RetryInitialDelay = d
	}
}

// WithMaxBackoff sets the maximum backoff duration
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.config.RetryMaxDelay = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.config.RetryExponentialBase = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0)
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.config.RetryJitter = f
	}
}

// WithBackoffStrategy selects the delay growth strategy.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithRetryBudget caps retries across all operations to maxRetries per window.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithCircuitBreaker sets the circuit breaker configuration
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithCache enables caching with the default in-memory cache
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.config.CacheEnabled = true
		c.config.CacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.config.CacheEnabled = true
		c.config.CacheTTL = ttl
		c.cache = cache
	}
}

// WithRedisCache stores results in Redis through rdb. The caller keeps
// ownership of rdb.
func WithRedisCache(rdb redis.UniversalClient, ttl time.Duration, opts ...RedisCacheOption) Option {
	return func(c *Client) {
		c.config.CacheEnabled = true
		c.config.CacheTTL = ttl
		c.cache = NewRedisCache(rdb, opts...)
	}
}

// WithoutCache disables caching.
func WithoutCache() Option {
	return func(c *Client) {
		c.config.CacheEnabled = false
	}
}

// WithCacheCondition sets a custom cache condition function
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithKindCacheTTL overrides the cache TTL for one operation kind.
func WithKindCacheTTL(kind OperationKind, ttl time.Duration) Option {
	return func(c *Client) {
		c.kindCacheTTL[kind] = ttl
	}
}

// WithRateLimit admits at most maxRequests per fixed window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.config.RateLimitEnabled = true
		c.config.RateLimitMaxRequests = maxRequests
		c.config.RateLimitWindow = window
		c.tokenBucket = false
	}
}

// WithTokenBucketRateLimit spreads maxRequests evenly over window with a
// burst of maxRequests instead of using fixed windows.
func WithTokenBucketRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.config.RateLimitEnabled = true
		c.config.RateLimitMaxRequests = maxRequests
		c.config.RateLimitWindow = window
		c.tokenBucket = true
	}
}

// WithLimiter installs a custom shared limiter.
func WithLimiter(l Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithKindLimiter adds a limiter that applies to one operation kind on top
// of the shared limiter.
func WithKindLimiter(kind OperationKind, l Limiter) Option {
	return func(c *Client) {
		c.kindLimiters[kind] = l
	}
}

// WithoutRateLimit disables the shared limiter.
func WithoutRateLimit() Option {
	return func(c *Client) {
		c.config.RateLimitEnabled = false
	}
}

// WithRateLimitWaitTimeout bounds how long an operation waits for rate limit
// capacity. 0 fails immediately; negative waits until the context ends.
func WithRateLimitWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.rateLimitTimeout = d
	}
}

// WithTransport replaces the built-in HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHTTPClient sets the *http.Client used by the built-in transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMiddleware adds middleware to the built-in HTTP transport
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics on the given registerer.
func WithMetrics(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector sets a shared metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default settings
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		if config == nil {
			config = DefaultDebugConfig()
		}
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDefaultLogger enables debug logging to stderr at the given level.
func WithDefaultLogger(level string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.config.LogLevel = level
		c.logger = NewDefaultLogger(level)
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithDeduplication toggles coalescing of concurrent identical operations (on by default).
func WithDeduplication(enabled bool) Option {
	return func(c *Client) {
		c.dedupDisabled = !enabled
	}
}

// WithMaxConcurrency bounds how many operations of one batch run at once.
// 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		c.maxConcurrency = n
	}
}

// WithBatchTimeout bounds the duration of ExecuteBatch. Operations still
// pending when it fires fail with KindTimeout.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.batchTimeout = d
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.config.validate()...)
	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateBatchConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		e := NewValidationError("config", "configuration validation failed")
		e.Cause = fmt.Errorf("validation errors: %v", errors)
		return e
	}

	return nil
}

// validateTransportConfig validates transport configuration
func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.transport == nil && c.config.APIKey == "" {
		errors = append(errors, "API key is required (set API_KEY or use WithAPIKey)")
	}
	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	if c.cacheCondition == nil {
		errors = append(errors, "cache condition cannot be nil")
	}
	for kind, ttl := range c.kindCacheTTL {
		if ttl <= 0 {
			errors = append(errors, fmt.Sprintf("cache TTL for %s must be positive", kind))
		}
	}
	for kind, l := range c.kindLimiters {
		if l == nil {
			errors = append(errors, fmt.Sprintf("limiter for %s cannot be nil", kind))
		}
	}

	return errors
}

// validateCircuitBreakerConfig validates circuit breaker configuration
func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be positive")
		}
	}
	if c.retryBudget != nil && (c.retryBudget.maxRetries <= 0 || c.retryBudget.perWindow <= 0) {
		errors = append(errors, "retry budget needs positive max retries and window")
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil && c.config.LogLevel == "" {
		errors = append(errors, "logger must be set when debug is enabled")
	}

	return errors
}

// validateBatchConfig validates batch configuration
func (c *Client) validateBatchConfig() []string {
	var errors []string

	if c.maxConcurrency < 0 {
		errors = append(errors, "max concurrency must be non-negative")
	}
	if c.batchTimeout < 0 {
		errors = append(errors, "batch timeout must be non-negative")
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.config.RetryInitialDelay > 10*time.Minute {
		errors = append(errors, "initialBackoff > 10m may cause very long delays")
	}
	if c.config.RetryMaxDelay > 1*time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}
	if c.config.RequestTimeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.config.RateLimitEnabled && c.config.RateLimitMaxRequests > 1000000 {
		errors = append(errors, "rate limit max requests > 1M may cause memory issues")
	}

	return errors
}

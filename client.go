package kraconnect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/BerjisTech/kra-connect-go/internal/singleflight"
)

// Option configures a Client.
type Option func(*Client)

// Client runs tax authority operations through validation, caching,
// de-duplication, rate limiting and retries. It is safe for concurrent use
// and owns its cache and limiters until Close.
type Client struct {
	config Config

	transport  Transport
	httpClient *http.Client
	middleware []Middleware

	cache          Cache
	cacheCondition CacheCondition
	kindCacheTTL   map[OperationKind]time.Duration
	memoryCache    *MemoryCache
	ownedCloser    io.Closer

	limiter          Limiter
	tokenBucket      bool
	kindLimiters     map[OperationKind]Limiter
	limiters         *LimiterRegistry
	rateLimitTimeout time.Duration

	backoffStrategy BackoffStrategy
	retry           RetryPolicy
	retryBudget     *RetryBudget
	circuitBreaker  *CircuitBreaker

	dedup         *singleflight.Group
	dedupDisabled bool

	maxConcurrency int
	batchTimeout   time.Duration

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	baseCtx     context.Context
	cancel      context.CancelFunc
	stopJanitor context.CancelFunc
	inflight    sync.WaitGroup
	closeMu     sync.RWMutex
	closed      bool
}

// New constructs a Client. Options are applied over DefaultConfig; any
// configuration problem is reported as a single ValidationError.
func New(options ...Option) (*Client, error) {
	client := &Client{
		config:           DefaultConfig(),
		cacheCondition:   DefaultCacheCondition,
		kindCacheTTL:     make(map[OperationKind]time.Duration),
		kindLimiters:     make(map[OperationKind]Limiter),
		rateLimitTimeout: -1,
		debug:            DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		return nil, err
	}

	if err := client.build(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) build() error {
	cfg := c.config

	if c.logger == nil && cfg.LogLevel != "" {
		c.logger = NewDefaultLogger(cfg.LogLevel)
		c.debug.Enabled = true
	}
	if c.debug.RequestIDGen == nil {
		c.debug.RequestIDGen = generateRequestID
	}

	if c.transport == nil {
		var opts []HTTPTransportOption
		httpClient := c.httpClient
		if httpClient == nil {
			httpClient = &http.Client{}
		}
		opts = append(opts, WithTransportHTTPClient(httpClient), WithTransportMiddleware(c.middleware...))
		if cfg.UserAgent != "" {
			opts = append(opts, WithTransportUserAgent(cfg.UserAgent))
		}
		c.transport = NewHTTPTransport(cfg.BaseURL, cfg.APIKey, opts...)
	}

	switch {
	case !cfg.CacheEnabled:
		c.cache = NopCache{}
	case c.cache != nil:
	case cfg.RedisURL != "":
		rc, err := NewRedisCacheFromURL(cfg.RedisURL, WithRedisErrorHandler(func(op string, err error) {
			c.debugLog(c.debug.LogCache).Warn("Redis cache error", "op", op, "error", err)
		}))
		if err != nil {
			return NewValidationError("config", "invalid redis URL: "+err.Error())
		}
		c.cache = rc
		c.ownedCloser = rc
	default:
		c.memoryCache = NewMemoryCache(cfg.CacheMaxSize)
		c.cache = c.memoryCache
	}
	if mc, ok := c.cache.(*MemoryCache); ok {
		c.memoryCache = mc
	}

	if c.limiter == nil {
		switch {
		case !cfg.RateLimitEnabled:
			c.limiter = UnlimitedLimiter{}
		case c.tokenBucket:
			c.limiter = NewTokenBucketLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
		default:
			c.limiter = NewFixedWindowLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
		}
	}
	c.limiters = NewLimiterRegistry(c.limiter)
	for kind, l := range c.kindLimiters {
		c.limiters.Register(kind, l)
	}

	c.retry = cfg.retryPolicy()
	c.retry.Strategy = c.backoffStrategy

	if !c.dedupDisabled {
		c.dedup = singleflight.New()
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.onChange = func(s CircuitState) {
			c.metrics.RecordCircuitBreakerState(s)
			c.debugLog(c.debug.LogCircuit).Warn("Circuit breaker state changed", "state", s.String())
		}
	}

	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	if c.memoryCache != nil {
		janitorCtx, stop := context.WithCancel(c.baseCtx)
		c.stopJanitor = stop
		c.memoryCache.StartJanitor(janitorCtx, janitorInterval(cfg.CacheTTL))
	}

	return nil
}

func janitorInterval(ttl time.Duration) time.Duration {
	every := ttl / 2
	if every < time.Second {
		every = time.Second
	}
	if every > 5*time.Minute {
		every = 5 * time.Minute
	}
	return every
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Do runs op through the full pipeline and returns its raw payload.
func (c *Client) Do(ctx context.Context, op Operation) Result[json.RawMessage] {
	start := time.Now()
	requestID := c.debug.RequestIDGen()

	c.debugLog(c.debug.LogRequests).Debug("Starting operation",
		"requestID", requestID,
		"operation", op.Kind().String(),
		"pin", MaskPIN(op.Param(ParamPIN)))

	if err := Validate(op); err != nil {
		return c.fail(op, requestID, start, err)
	}

	release, err := c.enter()
	if err != nil {
		return c.fail(op, requestID, start, err)
	}
	defer release()

	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	c.metrics.RecordOperationStart(op.Kind())
	defer c.metrics.RecordOperationEnd(op.Kind())

	key := op.Fingerprint()
	cacheable := c.cacheable(ctx, op)
	if cacheable {
		if v, ok := c.cache.Get(ctx, key); ok {
			c.metrics.RecordCacheHit(op.Kind())
			c.debugLog(c.debug.LogCache).Debug("Cache hit", "requestID", requestID, "fingerprint", key)
			c.metrics.RecordOperation(op.Kind(), nil, time.Since(start))
			return Success(json.RawMessage(v))
		}
		c.metrics.RecordCacheMiss(op.Kind())
		c.debugLog(c.debug.LogCache).Debug("Cache miss", "requestID", requestID, "fingerprint", key)
	}

	raw, ferr := c.coalesce(ctx, op, requestID, cacheable)
	if ferr != nil {
		return c.fail(op, requestID, start, ferr)
	}

	c.metrics.RecordOperation(op.Kind(), nil, time.Since(start))
	c.debugLog(c.debug.LogRequests).Debug("Operation succeeded",
		"requestID", requestID,
		"operation", op.Kind().String(),
		"duration", time.Since(start))
	return Success(raw)
}

// coalesce runs execute once per fingerprint among concurrent callers.
func (c *Client) coalesce(ctx context.Context, op Operation, requestID string, cacheable bool) (json.RawMessage, *Error) {
	if c.dedup == nil {
		return c.execute(ctx, op, requestID, cacheable)
	}

	for {
		v, err, shared := c.dedup.Do(ctx, op.Fingerprint(), func(ctx context.Context) (interface{}, error) {
			raw, ferr := c.execute(ctx, op, requestID, cacheable)
			if ferr != nil {
				if ctx.Err() != nil {
					return nil, &leaderAbandoned{err: ferr}
				}
				return nil, ferr
			}
			return raw, nil
		})

		if shared {
			c.metrics.RecordDeduplicationHit(op.Kind())
		}
		if err != nil {
			// The leader's own caller went away; ours is still live.
			var abandoned *leaderAbandoned
			if shared && ctx.Err() == nil && errors.As(err, &abandoned) {
				continue
			}
			return nil, Classify(err)
		}

		raw := v.(json.RawMessage)
		if shared {
			raw = append(json.RawMessage(nil), raw...)
		}
		return raw, nil
	}
}

// leaderAbandoned marks a coalesced failure caused by the leading caller's
// context ending, which says nothing about the other callers' requests.
type leaderAbandoned struct {
	err *Error
}

func (e *leaderAbandoned) Error() string { return e.err.Error() }

func (e *leaderAbandoned) Unwrap() error { return e.err }

// execute acquires rate limit capacity, then runs the retrying transport call
// and caches a success.
func (c *Client) execute(ctx context.Context, op Operation, requestID string, cacheable bool) (json.RawMessage, *Error) {
	if err := c.limiters.Acquire(ctx, op.Kind(), c.rateLimitTimeout); err != nil {
		ferr := Classify(err)
		if ferr.Kind == KindRateLimit {
			c.metrics.RecordRateLimited(op.Kind())
			c.debugLog(c.debug.LogRateLimit).Warn("Rate limit exceeded",
				"requestID", requestID,
				"operation", op.Kind().String(),
				"retryAfter", ferr.RetryAfter)
		}
		return nil, ferr
	}
	if fw, ok := c.limiter.(*FixedWindowLimiter); ok {
		c.metrics.RecordRateLimitWindow(fw.Count())
	}

	hooks := &RetryHooks{
		Budget: c.retryBudget,
		OnRetry: func(a RetryAttempt, lastErr *Error) {
			c.metrics.RecordRetry(op.Kind(), a.Number)
			c.debugLog(c.debug.LogRetries).Info("Scheduling retry",
				"requestID", requestID,
				"attempt", a.Number,
				"maxAttempts", c.retry.MaxAttempts,
				"backoff", a.Delay,
				"elapsed", a.Elapsed,
				"error", lastErr.Message)
		},
		OnBudgetExhausted: func(lastErr *Error) {
			c.metrics.RecordRetryBudgetExceeded()
			c.debugLog(c.debug.LogRetries).Warn("Retry budget exceeded",
				"requestID", requestID,
				"operation", op.Kind().String(),
				"error", lastErr.Message)
		},
	}

	raw, ferr := Retry(ctx, c.retry, func(ctx context.Context, attempt int) (json.RawMessage, error) {
		return c.attempt(ctx, op)
	}, hooks)
	if ferr != nil {
		return nil, ferr
	}

	if cacheable {
		ttl := c.cacheTTL(ctx, op)
		c.cache.Set(ctx, op.Fingerprint(), raw, ttl)
		if c.memoryCache != nil {
			c.metrics.RecordCacheSize(c.memoryCache.Len())
		}
		c.debugLog(c.debug.LogCache).Debug("Response cached", "requestID", requestID, "fingerprint", op.Fingerprint(), "ttl", ttl)
	}
	return raw, nil
}

// attempt performs one bounded transport call.
func (c *Client) attempt(ctx context.Context, op Operation) (json.RawMessage, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		e := NewServiceError(0, "circuit breaker is open")
		e.Cause = ErrCircuitOpen
		return nil, e
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	raw, err := c.transport.Send(attemptCtx, op)
	if err != nil {
		ferr := Classify(err)
		if ferr.Kind == KindTimeout && ferr.Elapsed == 0 {
			ferr = ferr.clone()
			ferr.Elapsed = time.Since(start)
		}
		if c.circuitBreaker != nil && ferr.Kind != KindCanceled {
			c.circuitBreaker.Record(ferr)
		}
		return nil, ferr
	}

	if c.circuitBreaker != nil {
		c.circuitBreaker.Record(nil)
	}
	return raw, nil
}

// Invalidate drops op's cached result, if any.
func (c *Client) Invalidate(ctx context.Context, op Operation) {
	c.cache.Invalidate(ctx, op.Fingerprint())
}

// Close cancels pending operations, which then fail with KindCanceled, and
// waits for them to finish or for ctx to end. It then releases the cache and
// transport. Operations issued after Close fail with KindCanceled.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if c.stopJanitor != nil {
		c.stopJanitor()
	}
	if c.ownedCloser != nil {
		if err := c.ownedCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := c.transport.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Client) enter() (func(), *Error) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return nil, newCanceledError(ErrClientClosed)
	}
	c.inflight.Add(1)
	return c.inflight.Done, nil
}

// operationContext derives a context that also ends when the client closes.
func (c *Client) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Client) cacheable(ctx context.Context, op Operation) bool {
	if ctrl, ok := cacheControlFrom(ctx); ok && !ctrl.Enabled {
		return false
	}
	return c.cacheCondition(op)
}

func (c *Client) cacheTTL(ctx context.Context, op Operation) time.Duration {
	if ctrl, ok := cacheControlFrom(ctx); ok && ctrl.TTL > 0 {
		return ctrl.TTL
	}
	if ttl, ok := c.kindCacheTTL[op.Kind()]; ok {
		return ttl
	}
	return c.config.CacheTTL
}

func (c *Client) fail(op Operation, requestID string, start time.Time, err *Error) Result[json.RawMessage] {
	e := annotate(op, requestID, err)

	c.metrics.RecordOperation(op.Kind(), e, time.Since(start))
	c.debugLog(c.debug.LogRequests).Warn("Operation failed",
		"requestID", requestID,
		"operation", e.Operation,
		"kind", string(e.Kind),
		"attempt", e.Attempt,
		"error", e.Message)

	return Failure[json.RawMessage](e)
}

// annotate returns a copy of err carrying op's diagnostic context.
func annotate(op Operation, requestID string, err *Error) *Error {
	e := err.clone()
	e.Operation = op.Kind().String()
	e.Fingerprint = op.Fingerprint()
	e.RequestID = requestID
	e.Timestamp = time.Now()
	return e
}

func (c *Client) debugLog(stage bool) Logger {
	if c.logger == nil || !c.debug.Enabled || !stage {
		return nopLogger{}
	}
	return c.logger
}

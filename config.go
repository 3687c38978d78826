package kraconnect

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.kra.go.ke/gavaconnect/v1"

// Config holds every tunable of a Client. The zero value is not usable; start
// from DefaultConfig or LoadConfig.
type Config struct {
	APIKey    string
	BaseURL   string
	UserAgent string

	// RequestTimeout bounds each transport attempt.
	RequestTimeout time.Duration

	RetryMaxAttempts     int
	RetryInitialDelay    time.Duration
	RetryMaxDelay        time.Duration
	RetryExponentialBase float64
	RetryJitter          float64

	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int
	// RedisURL selects a Redis cache instead of the in-memory one.
	RedisURL     string

	RateLimitEnabled     bool
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	// LogLevel enables the default stderr logger when set (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:              DefaultBaseURL,
		RequestTimeout:       30 * time.Second,
		RetryMaxAttempts:     3,
		RetryInitialDelay:    time.Second,
		RetryMaxDelay:        30 * time.Second,
		RetryExponentialBase: 2.0,
		RetryJitter:          0.1,
		CacheEnabled:         true,
		CacheTTL:             time.Hour,
		CacheMaxSize:         1000,
		RateLimitEnabled:     true,
		RateLimitMaxRequests: 100,
		RateLimitWindow:      60 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found). Each variable
// may also carry a KRA_ prefix; the unprefixed name wins.
func LoadConfig() (Config, error) {
	godotenv.Load()

	env := &envReader{}
	cfg := DefaultConfig()
	cfg.APIKey = env.str("API_KEY", cfg.APIKey)
	cfg.BaseURL = env.str("API_BASE_URL", cfg.BaseURL)
	cfg.UserAgent = env.str("USER_AGENT", cfg.UserAgent)
	cfg.RequestTimeout = env.duration("TIMEOUT", cfg.RequestTimeout)
	cfg.RetryMaxAttempts = env.integer("MAX_RETRIES", cfg.RetryMaxAttempts)
	cfg.RetryInitialDelay = env.duration("RETRY_INITIAL_DELAY", cfg.RetryInitialDelay)
	cfg.RetryMaxDelay = env.duration("RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	cfg.RetryExponentialBase = env.float("RETRY_EXPONENTIAL_BASE", cfg.RetryExponentialBase)
	cfg.CacheEnabled = env.boolean("CACHE_ENABLED", cfg.CacheEnabled)
	cfg.CacheTTL = env.duration("CACHE_TTL", cfg.CacheTTL)
	cfg.CacheMaxSize = env.integer("CACHE_MAX_SIZE", cfg.CacheMaxSize)
	cfg.RedisURL = env.str("REDIS_URL", cfg.RedisURL)
	cfg.RateLimitEnabled = env.boolean("RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitMaxRequests = env.integer("RATE_LIMIT_MAX_REQUESTS", cfg.RateLimitMaxRequests)
	cfg.RateLimitWindow = env.duration("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimitWindow)
	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)

	if len(env.errors) > 0 {
		return cfg, NewValidationError("config", strings.Join(env.errors, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once as a single ValidationError.
func (c Config) Validate() error {
	if errors := c.validate(); len(errors) > 0 {
		return NewValidationError("config", strings.Join(errors, "; "))
	}
	return nil
}

func (c Config) validate() []string {
	var errors []string

	if c.BaseURL == "" {
		errors = append(errors, "base URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		errors = append(errors, "request timeout must be positive")
	}
	errors = append(errors, c.retryPolicy().validate()...)
	if c.CacheEnabled {
		if c.CacheTTL <= 0 {
			errors = append(errors, "cache TTL must be positive")
		}
		if c.CacheMaxSize <= 0 {
			errors = append(errors, "cache max size must be positive")
		}
	}
	if c.RateLimitEnabled {
		if c.RateLimitMaxRequests <= 0 {
			errors = append(errors, "rate limit max requests must be positive")
		}
		if c.RateLimitWindow <= 0 {
			errors = append(errors, "rate limit window must be positive")
		}
	}

	return errors
}

func (c Config) retryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryExponentialBase,
		Jitter:       c.RetryJitter,
	}
}

type envReader struct {
	errors []string
}

func (r *envReader) lookup(key string) (string, string, bool) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return key, value, true
	}
	if value := strings.TrimSpace(os.Getenv("KRA_" + key)); value != "" {
		return "KRA_" + key, value, true
	}
	return "", "", false
}

func (r *envReader) fail(name, value, kind string) {
	r.errors = append(r.errors, fmt.Sprintf("%s=%q is not a valid %s", name, value, kind))
}

func (r *envReader) str(key, defaultValue string) string {
	if _, value, ok := r.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (r *envReader) integer(key string, defaultValue int) int {
	name, value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		r.fail(name, value, "integer")
		return defaultValue
	}
	return i
}

func (r *envReader) float(key string, defaultValue float64) float64 {
	name, value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(name, value, "number")
		return defaultValue
	}
	return f
}

func (r *envReader) boolean(key string, defaultValue bool) bool {
	name, value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(name, value, "boolean")
		return defaultValue
	}
	return b
}

// duration accepts Go syntax ("30s", "1m30s") or bare seconds ("30", "0.5").
func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	name, value, ok := r.lookup(key)
	if !ok {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	r.fail(name, value, "duration")
	return defaultValue
}

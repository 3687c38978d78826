package kraconnect

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryInitialDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 2.0, cfg.RetryExponentialBase)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 1000, cfg.CacheMaxSize)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("API_KEY", "env-key")
	t.Setenv("API_BASE_URL", "https://sandbox.example.test")
	t.Setenv("TIMEOUT", "10s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_INITIAL_DELAY", "0.5")
	t.Setenv("RETRY_MAX_DELAY", "1m")
	t.Setenv("RETRY_EXPONENTIAL_BASE", "1.5")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://sandbox.example.test", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitialDelay)
	assert.Equal(t, time.Minute, cfg.RetryMaxDelay)
	assert.Equal(t, 1.5, cfg.RetryExponentialBase)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 10, cfg.RateLimitMaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigPrefixedNames(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("KRA_API_KEY", "prefixed-key")
	t.Setenv("KRA_MAX_RETRIES", "4")
	t.Setenv("MAX_RETRIES", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "prefixed-key", cfg.APIKey)
	assert.Equal(t, 2, cfg.RetryMaxAttempts, "unprefixed name wins")
}

func TestLoadConfigReportsEveryBadValue(t *testing.T) {
	t.Setenv("TIMEOUT", "soon")
	t.Setenv("MAX_RETRIES", "three")
	t.Setenv("CACHE_ENABLED", "maybe")
	t.Setenv("KRA_RETRY_EXPONENTIAL_BASE", "fast")

	_, err := LoadConfig()
	require.Error(t, err)

	var kerr *Error
	require.True(t, errors.As(err, &kerr))
	assert.Equal(t, KindValidation, kerr.Kind)
	for _, want := range []string{
		`TIMEOUT="soon" is not a valid duration`,
		`MAX_RETRIES="three" is not a valid integer`,
		`CACHE_ENABLED="maybe" is not a valid boolean`,
		`KRA_RETRY_EXPONENTIAL_BASE="fast" is not a valid number`,
	} {
		assert.Contains(t, kerr.Reason, want)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv("MAX_RETRIES", "0")
	t.Setenv("CACHE_MAX_SIZE", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry max attempts must be at least 1")
	assert.Contains(t, err.Error(), "cache max size must be positive")
}

func TestConfigValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{RetryJitter: 3, CacheEnabled: true, RateLimitEnabled: true}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"base URL must not be empty",
		"request timeout must be positive",
		"retry max attempts must be at least 1",
		"retry initial delay must be positive",
		"retry exponential base must be positive",
		"retry jitter must be between 0 and 1",
		"cache TTL must be positive",
		"cache max size must be positive",
		"rate limit max requests must be positive",
		"rate limit window must be positive",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %s", want, msg)
	}
}

func TestConfigValidateSkipsDisabledFeatures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheEnabled = false
	cfg.CacheTTL = 0
	cfg.RateLimitEnabled = false
	cfg.RateLimitWindow = 0

	assert.NoError(t, cfg.Validate())
}

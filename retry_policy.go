package kraconnect

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BerjisTech/kra-connect-go/internal/backoff"
)

// BackoffStrategy selects how retry delays grow.
type BackoffStrategy int

const (
	// ExponentialJitter grows delays exponentially with bounded upward jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter randomises delays between the initial delay and an
	// exponentially growing ceiling.
	DecorrelatedJitter
)

// RetryPolicy bounds how a single operation is retried. MaxAttempts counts
// the first try, so 3 means at most 2 retries.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	Strategy     BackoffStrategy
}

// DefaultRetryPolicy returns 3 attempts, 1s initial delay, 30s cap, base 2 and 10% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		Strategy:     ExponentialJitter,
	}
}

// Delay returns the wait after the failed attempt with the given 0-based number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	params := backoff.Params{
		Initial:    p.InitialDelay,
		Max:        p.MaxDelay,
		Multiplier: p.Multiplier,
		Jitter:     p.Jitter,
	}
	if p.Strategy == DecorrelatedJitter {
		return backoff.Decorrelated{}.Delay(attempt, params)
	}
	return backoff.Exponential{}.Delay(attempt, params)
}

func (p RetryPolicy) validate() []string {
	var errors []string
	if p.MaxAttempts < 1 {
		errors = append(errors, "retry max attempts must be at least 1")
	}
	if p.InitialDelay <= 0 {
		errors = append(errors, "retry initial delay must be positive")
	}
	if p.MaxDelay < p.InitialDelay {
		errors = append(errors, "retry max delay must be greater than or equal to initial delay")
	}
	if p.Multiplier <= 0 {
		errors = append(errors, "retry exponential base must be positive")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errors = append(errors, "retry jitter must be between 0 and 1")
	}
	if p.MaxAttempts > 100 {
		errors = append(errors, "retry max attempts > 100 may cause excessive resource usage")
	}
	return errors
}

// RetryAttempt describes an upcoming retry.
type RetryAttempt struct {
	// Number is the 0-based attempt about to run.
	Number int
	// Delay is the wait before it.
	Delay time.Duration
	// Elapsed is the time spent since the first attempt started.
	Elapsed time.Duration
}

// RetryHooks are optional observers and vetoes for Retry.
type RetryHooks struct {
	OnRetry func(a RetryAttempt, lastErr *Error)
	Budget  *RetryBudget

	// OnBudgetExhausted is called when Budget vetoes a retry.
	OnBudgetExhausted func(lastErr *Error)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are exhausted. Attempts are strictly sequential and the
// wait before each retry is at least the previous one. The returned error
// carries the attempt count.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) (T, error), hooks *RetryHooks) (T, *Error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	var prevDelay time.Duration

	for attempt := 0; ; attempt++ {
		attemptStart := time.Now()
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}

		failure := Classify(err).clone()
		failure.Attempt = attempt + 1
		failure.MaxAttempts = maxAttempts
		if failure.Kind == KindTimeout && failure.Elapsed == 0 {
			failure.Elapsed = time.Since(attemptStart)
		}

		if !failure.Retryable() || attempt+1 >= maxAttempts {
			return zero, failure
		}
		if ctx.Err() != nil {
			return zero, annotateAttempt(Classify(ctx.Err()), attempt+1, maxAttempts)
		}
		if hooks != nil && hooks.Budget != nil && !hooks.Budget.Allow() {
			if hooks.OnBudgetExhausted != nil {
				hooks.OnBudgetExhausted(failure)
			}
			return zero, failure
		}

		// Delays never shrink, whatever the strategy draws.
		delay := p.Delay(attempt)
		if delay < prevDelay {
			delay = prevDelay
		}
		prevDelay = delay
		if hooks != nil && hooks.OnRetry != nil {
			hooks.OnRetry(RetryAttempt{Number: attempt + 1, Delay: delay, Elapsed: time.Since(start)}, failure)
		}
		if err := sleepContext(ctx, delay); err != nil {
			return zero, annotateAttempt(Classify(err), attempt+1, maxAttempts)
		}
	}
}

func annotateAttempt(e *Error, attempt, maxAttempts int) *Error {
	e = e.clone()
	e.Attempt = attempt
	e.MaxAttempts = maxAttempts
	return e
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryBudget caps the retries a client may spend per window across all
// operations, so a failing service is not hammered by every caller at once.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget creates a new retry budget tracker.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow consumes one retry from the budget if any is left in the current window.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	if atomic.LoadInt64(&rb.current) >= rb.maxRetries {
		return false
	}
	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// GetStats returns current retry budget statistics.
func (rb *RetryBudget) GetStats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}

func (rb *RetryBudget) String() string {
	current, max, _ := rb.GetStats()
	return fmt.Sprintf("retry budget %d/%d per %v", current, max, rb.perWindow)
}

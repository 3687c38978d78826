package kraconnect

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds outbound operations. Acquire admits the caller or, once
// timeout elapses without admission, returns a KindRateLimit *Error whose
// RetryAfter hints when capacity frees up. timeout == 0 never waits and a
// negative timeout waits until admission or ctx cancellation.
type Limiter interface {
	Acquire(ctx context.Context, timeout time.Duration) error
}

// RateWindow is a snapshot of a fixed window.
type RateWindow struct {
	Start       time.Time
	Count       int
	MaxRequests int
	Duration    time.Duration
}

// FixedWindowLimiter admits at most maxRequests per window. Rollover is
// computed lazily on each call.
type FixedWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	windowStart time.Time
	count       int

	now func() time.Time
}

// NewFixedWindowLimiter creates a limiter whose first window starts now.
func NewFixedWindowLimiter(maxRequests int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Acquire implements Limiter.
func (l *FixedWindowLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = l.now().Add(timeout)
	}

	for {
		admitted, remaining := l.tryAcquire()
		if admitted {
			return nil
		}

		wait := remaining
		if timeout >= 0 {
			left := deadline.Sub(l.now())
			if left <= 0 {
				return NewRateLimitError(remaining)
			}
			if left < wait {
				wait = left
			}
		}

		if err := sleepContext(ctx, wait); err != nil {
			return Classify(err)
		}
	}
}

// tryAcquire rolls the window if due and admits when below the limit. It
// otherwise reports the time left in the current window.
func (l *FixedWindowLimiter) tryAcquire() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count < l.maxRequests {
		l.count++
		return true, 0
	}
	return false, l.windowStart.Add(l.window).Sub(now)
}

// Window returns the current window state.
func (l *FixedWindowLimiter) Window() RateWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RateWindow{
		Start:       l.windowStart,
		Count:       l.count,
		MaxRequests: l.maxRequests,
		Duration:    l.window,
	}
}

// Count returns the requests admitted in the current window.
func (l *FixedWindowLimiter) Count() int {
	return l.Window().Count
}

// Reset starts a fresh, empty window.
func (l *FixedWindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowStart = l.now()
	l.count = 0
}

// TokenBucketLimiter spreads maxRequests evenly over the window with a burst
// of maxRequests, using golang.org/x/time/rate reservations.
type TokenBucketLimiter struct {
	lim *rate.Limiter
}

// NewTokenBucketLimiter creates a token bucket refilling maxRequests tokens per window.
func NewTokenBucketLimiter(maxRequests int, window time.Duration) *TokenBucketLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	every := window / time.Duration(maxRequests)
	return &TokenBucketLimiter{lim: rate.NewLimiter(rate.Every(every), maxRequests)}
}

// Acquire implements Limiter. A reservation that would wait longer than
// timeout is cancelled so its token returns to the bucket.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}

	r := l.lim.Reserve()
	if !r.OK() {
		return NewRateLimitError(0)
	}

	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if timeout >= 0 && delay > timeout {
		r.Cancel()
		return NewRateLimitError(delay)
	}
	if err := sleepContext(ctx, delay); err != nil {
		r.Cancel()
		return Classify(err)
	}
	return nil
}

// Tokens returns the tokens currently available.
func (l *TokenBucketLimiter) Tokens() float64 {
	return l.lim.Tokens()
}

// UnlimitedLimiter admits every call; used when rate limiting is disabled.
type UnlimitedLimiter struct{}

func (UnlimitedLimiter) Acquire(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	return nil
}

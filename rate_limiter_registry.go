package kraconnect

import (
	"context"
	"sync"
	"time"
)

// LimiterRegistry pairs the shared client-wide limiter with optional
// per-kind limiters. Every operation passes the shared limiter; a kind with
// its own limiter must pass that one as well.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[OperationKind]Limiter
	shared   Limiter
}

// NewLimiterRegistry creates a registry around the shared limiter.
func NewLimiterRegistry(shared Limiter) *LimiterRegistry {
	if shared == nil {
		shared = UnlimitedLimiter{}
	}
	return &LimiterRegistry{
		limiters: make(map[OperationKind]Limiter),
		shared:   shared,
	}
}

// Register adds a limiter for kind, replacing any previous one.
func (r *LimiterRegistry) Register(kind OperationKind, limiter Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[kind] = limiter
}

// Shared returns the client-wide limiter.
func (r *LimiterRegistry) Shared() Limiter {
	return r.shared
}

// Get returns the kind specific limiter, if any.
func (r *LimiterRegistry) Get(kind OperationKind) (Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[kind]
	return l, ok
}

// Acquire admits an operation of kind through the shared limiter and then its
// kind limiter. Both waits share the same timeout budget.
func (r *LimiterRegistry) Acquire(ctx context.Context, kind OperationKind, timeout time.Duration) error {
	start := time.Now()
	if err := r.shared.Acquire(ctx, timeout); err != nil {
		return err
	}

	limiter, ok := r.Get(kind)
	if !ok {
		return nil
	}
	if timeout > 0 {
		timeout -= time.Since(start)
		if timeout < 0 {
			timeout = 0
		}
	}
	return limiter.Acquire(ctx, timeout)
}

package kraconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache stores successful operation payloads by fingerprint. Implementations
// must only return entries whose expiry lies in the future and must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// CacheCondition determines whether an operation's result may be cached.
type CacheCondition func(op Operation) bool

// DefaultCacheCondition caches every operation.
func DefaultCacheCondition(Operation) bool { return true }

// ReadOnlyCacheCondition caches lookups only; e-slip validations and NIL
// return filings always reach the service.
func ReadOnlyCacheCondition(op Operation) bool {
	switch op.Kind() {
	case EslipValidation, NilReturnFiling:
		return false
	default:
		return true
	}
}

// Context keys for cache control
type contextKey string

const (
	CacheControlKey contextKey = "kraconnect_cache_control"
)

// CacheControl holds cache control options for a single call.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheDisabled creates a context that bypasses the cache for the call.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL creates a context that caches the call's result for ttl.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, CacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

func cacheControlFrom(ctx context.Context) (*CacheControl, bool) {
	cc, ok := ctx.Value(CacheControlKey).(*CacheControl)
	return cc, ok
}

// NopCache is the disabled cache: every lookup misses and writes are dropped.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NopCache) Set(context.Context, string, []byte, time.Duration) {}

func (NopCache) Invalidate(context.Context, string) {}

// MemoryCache is a bounded in-process cache. Eviction order is by insertion
// or refresh, never by read, so Get only takes the read lock.
type MemoryCache struct {
	mu      sync.RWMutex
	store   map[string]*memoryCacheEntry
	maxSize int

	// head is the most recently inserted or refreshed entry, tail the oldest.
	head, tail *memoryCacheEntry

	now func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

type memoryCacheEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	expiresAt time.Time

	prev, next *memoryCacheEntry
}

// CacheStats is a point-in-time view of a MemoryCache.
type CacheStats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewMemoryCache creates a cache holding at most maxSize entries (1000 when maxSize <= 0).
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCache{
		store:   make(map[string]*memoryCacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns a copy of the value for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.store[key]
	var value []byte
	if ok && c.now().Before(entry.expiresAt) {
		value = append([]byte(nil), entry.value...)
	} else {
		ok = false
	}
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Set inserts or refreshes key. When a new key would exceed the size bound,
// expired entries are swept first, then the oldest entry is evicted.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()
	value = append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.store[key]; ok {
		entry.value = value
		entry.createdAt = now
		entry.expiresAt = now.Add(ttl)
		c.unlink(entry)
		c.pushFront(entry)
		return
	}

	if len(c.store) >= c.maxSize {
		c.sweepLocked(now)
	}
	for len(c.store) >= c.maxSize && c.tail != nil {
		c.removeLocked(c.tail)
		atomic.AddInt64(&c.evictions, 1)
	}

	entry := &memoryCacheEntry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.store[key] = entry
	c.pushFront(entry)
}

// Invalidate removes key; it is a no-op when absent.
func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.store[key]; ok {
		c.removeLocked(entry)
	}
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*memoryCacheEntry)
	c.head, c.tail = nil, nil
}

// Len returns the number of physically stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Sweep removes expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// StartJanitor sweeps expired entries every interval until ctx is done.
func (c *MemoryCache) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// GetStats returns cache statistics.
func (c *MemoryCache) GetStats() CacheStats {
	return CacheStats{
		Size:      c.Len(),
		MaxSize:   c.maxSize,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for entry := c.tail; entry != nil; {
		prev := entry.prev
		if !now.Before(entry.expiresAt) {
			c.removeLocked(entry)
			removed++
		}
		entry = prev
	}
	return removed
}

func (c *MemoryCache) removeLocked(entry *memoryCacheEntry) {
	delete(c.store, entry.key)
	c.unlink(entry)
}

func (c *MemoryCache) pushFront(entry *memoryCacheEntry) {
	entry.prev = nil
	entry.next = c.head
	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry
	if c.tail == nil {
		c.tail = entry
	}
}

func (c *MemoryCache) unlink(entry *memoryCacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}

	entry.prev = nil
	entry.next = nil
}

package cache

import (
	"sync"
	"time"
)

// TTLCache provides in-memory caching with per-entry expiration
type TTLCache[K comparable, V any] struct {
	data    map[K]*cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// cacheEntry represents a cache entry with expiration
type cacheEntry[V any] struct {
	value      V
	storedAt   time.Time
	expiration time.Time
}

// Option configures a TTLCache
type Option func(*options)

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupInterval sets how often expired entries are purged.
// Zero disables the background cleanup goroutine.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// NewTTLCache creates a new cache whose entries live for ttl
func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	o := options{now: time.Now, cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	cache := &TTLCache[K, V]{
		data: make(map[K]*cacheEntry[V]),
		ttl:  ttl,
		now:  o.now,
		done: make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		cache.cleanup = time.NewTicker(o.cleanupInterval)
		go cache.cleanupLoop()
	}

	return cache
}

// Get retrieves a live value from the cache
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.now().After(entry.expiration) {
		var zero V
		return zero, false
	}

	return entry.value, true
}

// Set stores a value in the cache
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value in the cache with a custom TTL
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.data[key] = &cacheEntry[V]{
		value:      value,
		storedAt:   now,
		expiration: now.Add(ttl),
	}
}

// Age returns how long ago key was stored. ok is false when the key is
// missing or already expired.
func (c *TTLCache[K, V]) Age(key K) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	now := c.now()
	if !ok || now.After(entry.expiration) {
		return 0, false
	}
	return now.Sub(entry.storedAt), true
}

// Delete removes a value from the cache
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Size returns the number of entries in the cache, expired ones included
// until the next cleanup.
func (c *TTLCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

func (c *TTLCache[K, V]) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *TTLCache[K, V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (c *TTLCache[K, V]) Stop() {
	c.stop.Do(func() {
		if c.cleanup != nil {
			c.cleanup.Stop()
		}
		close(c.done)
	})
}

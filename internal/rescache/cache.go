package rescache

import (
	"sync"
	"time"

	drepo "PatternPulse/internal/domain/repository"
)

// Namespaces used by the scan stages.
const (
	NSVolume  = "volume"
	NSRange   = "range"
	NSPhase   = "phase"
	NSPattern = "pattern"
)

// Key identifies one cached intermediate. Symbol and timeframe are distinct
// fields so per-pair invalidation never depends on string matching.
type Key struct {
	Namespace string
	Symbol    string
	Timeframe string
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Size          int     `json:"size"`
	Evictions     uint64  `json:"evictions"`
	Invalidations uint64  `json:"invalidations"`
}

type item struct {
	value    any
	expireAt time.Time
	accessed time.Time
}

// Option configures Cache.
type Option func(*Cache)

// WithMaxSize caps the number of entries; the least recently used entry is
// evicted on overflow. A non-positive size disables storing entirely, which
// changes cost, never correctness.
func WithMaxSize(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// WithTTL sets the time-to-live applied on every Set.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithCleanupInterval sets the background expired-entry sweep interval.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) { c.cleanupEvery = d }
}

// WithMetrics sets the metrics recorder for hit/miss accounting.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache memoizes expensive per-symbol/timeframe stage outputs. It is
// bounded, time-boxed, and strictly an optimization: a Get miss is the
// expected path that triggers recomputation, never an error.
type Cache struct {
	mu   sync.Mutex
	data map[Key]*item

	maxSize      int
	ttl          time.Duration
	cleanupEvery time.Duration
	ticker       *time.Ticker
	stopCh       chan struct{}
	closeOnce    sync.Once
	metrics      drepo.Metrics

	hits          uint64
	misses        uint64
	evictions     uint64
	invalidations uint64
}

// New creates a result cache and starts its expiry sweep.
func New(opts ...Option) *Cache {
	c := &Cache{
		data:         make(map[Key]*item),
		maxSize:      1000,
		ttl:          5 * time.Minute,
		cleanupEvery: time.Minute,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ticker = time.NewTicker(c.cleanupEvery)
	go c.sweep()
	return c
}

// Get returns the cached value if present and unexpired. An expired entry
// is removed on read and reported as a miss; the cache never returns an
// entry past its TTL.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.data[key]
	if !ok {
		c.miss(key)
		return nil, false
	}
	if time.Now().After(it.expireAt) {
		delete(c.data, key)
		c.miss(key)
		return nil, false
	}
	it.accessed = time.Now()
	c.hits++
	if c.metrics != nil {
		c.metrics.RecordCacheAccess(key.Namespace, true)
	}
	return it.value, true
}

// Set stores a value with a fresh TTL, evicting the least recently used
// entry when at capacity.
func (c *Cache) Set(key Key, value any) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictLRU()
	}
	now := time.Now()
	c.data[key] = &item{value: value, expireAt: now.Add(c.ttl), accessed: now}
}

// InvalidateSymbol removes every entry for the symbol/timeframe pair across
// all namespaces. Called when new raw bars arrive, since every derived
// computation for the pair is stale. Returns the number of entries removed.
func (c *Cache) InvalidateSymbol(symbol, timeframe string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.data {
		if k.Symbol == symbol && k.Timeframe == timeframe {
			delete(c.data, k)
			removed++
		}
	}
	c.invalidations += uint64(removed)
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		HitRate:       rate,
		Size:          len(c.data),
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// caller holds c.mu
func (c *Cache) miss(key Key) {
	c.misses++
	if c.metrics != nil {
		c.metrics.RecordCacheAccess(key.Namespace, false)
	}
}

// caller holds c.mu
func (c *Cache) evictLRU() {
	var oldestKey Key
	var oldest time.Time
	first := true
	for k, it := range c.data {
		if first || it.accessed.Before(oldest) {
			oldest = it.accessed
			oldestKey = k
			first = false
		}
	}
	if !first {
		delete(c.data, oldestKey)
		c.evictions++
	}
}

func (c *Cache) sweep() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, it := range c.data {
				if now.After(it.expireAt) {
					delete(c.data, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

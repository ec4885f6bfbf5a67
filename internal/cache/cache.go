package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how stale an evaluation decision can get when an
// administrative mutation happens on another instance.
const DefaultTTL = 60 * time.Second

type entry struct {
	value    bool
	storedAt time.Time
}

// TTLCache is a concurrent decision cache for flag evaluations. Expiry is
// lazy: entries are checked on read, never swept in the background, so a
// cold entry simply gets recomputed on next access.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func New(ttl time.Duration) *TTLCache {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock injects the clock so TTL behavior is testable without
// wall-clock sleeps.
func NewWithClock(ttl time.Duration, now func() time.Time) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached decision and whether it was present and fresh.
func (c *TTLCache) Get(key string) (bool, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return false, false
	}
	return e.value, true
}

func (c *TTLCache) Set(key string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
}

// InvalidatePrefix removes every entry whose key starts with prefix. Used by
// administrative mutations: the flag key prefix covers both the global entry
// and all per-user entries. Returns the number of entries removed.
func (c *TTLCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

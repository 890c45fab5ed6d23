package cache

import (
	"sync"
	"time"

	"lighttavern/backend/pkg/config"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe in-memory cache with per-entry expiration and a
// soft size cap. Entries past their TTL are dropped lazily on read and
// swept periodically.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int
}

// NewCache creates a cache configured from the application config.
func NewCache() *Cache {
	cfg := config.Get()

	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: cfg.Cache.TTL,
		maxEntries: cfg.Cache.MaxSize,
	}

	if cfg.Cache.PurgeWindow > 0 {
		go c.sweep(cfg.Cache.PurgeWindow)
	}

	return c
}

// Set stores a value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiration(key, value, c.defaultTTL)
}

// SetWithExpiration stores a value with an explicit TTL. A non-positive TTL
// means the entry never expires.
func (c *Cache) SetWithExpiration(key string, value interface{}, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictSoonest()
		}
	}

	c.entries[key] = entry{value: value, expiresAt: expiresAt}
}

// Get returns the value for key, or false when absent or expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || e.expired(time.Now()) {
		return nil, false
	}
	return e.value, true
}

// Delete removes an entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.entries {
			if e.expired(now) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}

// evictSoonest drops the entry closest to expiry. Caller holds the lock.
func (c *Cache) evictSoonest() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || (!e.expiresAt.IsZero() && e.expiresAt.Before(soonest)) {
			victim = k
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Package cache provides thread-safe caching with expiry and schema versions.
package cache

import (
	"sync"
	"time"
)

// Entry holds a cached value with its version tag and expiration.
// A zero expiration never expires.
type Entry struct {
	expiration time.Time
	value      any
	version    string
}

func (e Entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// Cache provides thread-safe in-memory caching with TTL. Writes are last-write-wins.
type Cache struct {
	entries map[string]Entry
	now     func() time.Time
	done    chan struct{}
	mu      sync.RWMutex
	ttl     time.Duration
	once    sync.Once
}

// New creates a new cache with the specified default TTL.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanupExpired()
	return c
}

// Get retrieves an unversioned value from cache if not expired.
func (c *Cache) Get(key string) (any, bool) {
	return c.GetVersion(key, "")
}

// GetVersion retrieves a value if it is not expired and was stored with the given version.
func (c *Cache) GetVersion(key, version string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if entry.expired(c.now()) || entry.version != version {
		c.mu.Lock()
		// Double-check after lock upgrade to avoid deleting a fresh write.
		if e, ok := c.entries[key]; ok && (e.expired(c.now()) || e.version != version) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Set stores a value in cache with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores an unversioned value in cache with a custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.SetVersion(key, "", value, ttl)
}

// SetVersion stores a value tagged with a version. A ttl <= 0 never expires.
func (c *Cache) SetVersion(key, version string, value any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.setEntry(key, Entry{value: value, version: version, expiration: exp})
}

func (c *Cache) setEntry(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, including expired ones not yet collected.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

// cleanupExpired periodically removes expired entries.
func (c *Cache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, entry := range c.entries {
				if entry.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

package testutil

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/cache"
)

// MockCache implements cache.Store for testing.
// Values are stored as JSON so lookups behave like the real store.
type MockCache struct {
	entries map[string]mockEntry
	now     func() time.Time
	puts    int
	mu      sync.RWMutex
}

type mockEntry struct {
	expiration time.Time
	version    string
	ttl        time.Duration
	payload    []byte
}

var _ cache.Store = (*MockCache)(nil)

// NewMockCache creates a new MockCache.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[string]mockEntry),
		now:     time.Now,
	}
}

// WithClock makes the cache read time from clock.
func (m *MockCache) WithClock(clock *MockClock) *MockCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = clock.Now
	return m
}

// Lookup decodes a stored value into dst.
func (m *MockCache) Lookup(key, version string, dst any) cache.HitType {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok || entry.version != version {
		return cache.Miss
	}
	if !entry.expiration.IsZero() && now.After(entry.expiration) {
		return cache.Miss
	}
	if err := json.Unmarshal(entry.payload, dst); err != nil {
		return cache.Miss
	}
	return cache.HitMemory
}

// Put stores a value. A ttl <= 0 never expires.
func (m *MockCache) Put(key, version string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry := mockEntry{payload: payload, version: version, ttl: ttl}
	if ttl > 0 {
		entry.expiration = m.now().Add(ttl)
	}
	m.entries[key] = entry
	m.puts++
	return nil
}

// Remove deletes a key.
func (m *MockCache) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// TTL returns the ttl a key was stored with.
func (m *MockCache) TTL(key string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e.ttl, ok
}

// Puts returns the number of Put calls.
func (m *MockCache) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Clear clears all entries from the cache.
func (m *MockCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]mockEntry)
}

// Len returns the number of entries in the cache.
func (m *MockCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

package testutil

import (
	"sync"
	"time"
)

// MockClock is a manually advanced clock for testing.
type MockClock struct {
	current time.Time
	mu      sync.Mutex
}

// NewMockClock creates a clock stopped at now.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{current: now}
}

// Now returns the configured current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance advances the mock time by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

package crypto

import (
	"sync"
	"time"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// ManualTimeProvider is a clock that only moves when told to, so flush
// intervals can be tested without sleeping.
type ManualTimeProvider struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualTimeProvider creates a ManualTimeProvider starting at t.
func NewManualTimeProvider(t time.Time) *ManualTimeProvider {
	return &ManualTimeProvider{current: t}
}

// Now returns the manual current time.
func (m *ManualTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Since returns the duration between t and the manual current time.
func (m *ManualTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (m *ManualTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}

// defaultTimeProvider is the package-level default for components that are
// not given a clock explicitly.
var (
	defaultTimeMu       sync.RWMutex
	defaultTimeProvider TimeProvider = DefaultTimeProvider{}
)

// SetDefaultTimeProvider sets the package-level time provider for testing.
// Pass nil to reset to the default implementation.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	defaultTimeMu.Lock()
	defaultTimeProvider = tp
	defaultTimeMu.Unlock()
}

// GetDefaultTimeProvider returns the current package-level time provider.
func GetDefaultTimeProvider() TimeProvider {
	defaultTimeMu.RLock()
	defer defaultTimeMu.RUnlock()
	return defaultTimeProvider
}

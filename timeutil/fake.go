package timeutil

import (
	"sync"
	"time"
)

// FakeTimeProvider is a manually advanced clock for tests.
// The zero value is not usable; construct with NewFakeTimeProvider.
type FakeTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeTimeProvider creates a fake clock starting at the given instant.
func NewFakeTimeProvider(start time.Time) *FakeTimeProvider {
	return &FakeTimeProvider{now: start}
}

// Now returns the fake current time.
func (f *FakeTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the duration since t according to the fake clock.
func (f *FakeTimeProvider) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Advance moves the fake clock forward by d.
func (f *FakeTimeProvider) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

package auth

import (
	"sync"
	"time"
)

type limitEntry struct {
	attempts    int
	windowStart time.Time
	lastAttempt time.Time
}

// Limiter is a sliding-window attempt counter guarding the login endpoint,
// keyed by client network identity. The mutex serializes concurrent requests
// touching the same key so no attempt update is lost.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string]*limitEntry
	now     func() time.Time
}

// NewLimiter creates a limiter allowing max attempts per window for each key.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		entries: make(map[string]*limitEntry),
		now:     time.Now,
	}
}

// Check records one attempt for key. It returns ok=false when the key has
// exhausted its attempts, along with the time remaining until the window
// resets. Expired entries across all keys are purged on each call.
func (l *Limiter) Check(key string) (retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.entries {
		if now.Sub(e.windowStart) > l.window {
			delete(l.entries, k)
		}
	}

	e, found := l.entries[key]
	if !found || now.Sub(e.windowStart) > l.window {
		e = &limitEntry{windowStart: now}
		l.entries[key] = e
	}

	if e.attempts >= l.max {
		remaining := l.window - now.Sub(e.windowStart)
		if remaining < 0 {
			remaining = 0
		}
		return remaining, false
	}

	e.attempts++
	e.lastAttempt = now
	return 0, true
}

// Reset clears the entry for key. Called after a successful authentication.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Attempts returns the recorded attempt count for key within the current window.
func (l *Limiter) Attempts(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e.attempts
	}
	return 0
}

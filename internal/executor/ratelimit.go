package executor

import (
	"sync"
	"time"
)

const (
	// DefaultRequestsPerWindow is the per-user quota
	DefaultRequestsPerWindow = 50

	// DefaultWindow is the quota window length
	DefaultWindow = time.Hour

	// pruneThreshold bounds how many idle users are tracked before expired
	// windows are swept
	pruneThreshold = 1024
)

// Window is one user's request count since WindowStart.
type Window struct {
	Count       int
	WindowStart time.Time
}

// RateLimiter is a fixed-length per-user request window. State lives only
// in memory; a restart forgets every window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*Window
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	r := &RateLimiter{
		windows: make(map[string]*Window),
		now:     time.Now,
	}
	r.SetLimit(limit, window)
	return r
}

// SetLimit changes the quota. Existing windows keep their counts.
func (r *RateLimiter) SetLimit(limit int, window time.Duration) {
	if limit <= 0 {
		limit = DefaultRequestsPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	r.mu.Lock()
	r.limit = limit
	r.window = window
	r.mu.Unlock()
}

// Limit returns the current quota.
func (r *RateLimiter) Limit() (int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit, r.window
}

// Allow counts a request for userID and reports whether it is within quota.
// When it is not, the second value is the time until the window resets.
func (r *RateLimiter) Allow(userID string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[userID]
	if !ok || now.Sub(w.WindowStart) > r.window {
		if !ok && len(r.windows) >= pruneThreshold {
			r.pruneLocked(now)
		}
		r.windows[userID] = &Window{Count: 1, WindowStart: now}
		return true, 0
	}

	w.Count++
	if w.Count <= r.limit {
		return true, 0
	}
	return false, r.window - now.Sub(w.WindowStart)
}

// Snapshot returns a copy of userID's window.
func (r *RateLimiter) Snapshot(userID string) (Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[userID]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Reset forgets userID's window.
func (r *RateLimiter) Reset(userID string) {
	r.mu.Lock()
	delete(r.windows, userID)
	r.mu.Unlock()
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	for user, w := range r.windows {
		if now.Sub(w.WindowStart) > r.window {
			delete(r.windows, user)
		}
	}
}

package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRateLimiter(limit, time.Hour)
	r.now = clock.now
	return r, clock
}

func TestRateLimiterQuota(t *testing.T) {
	r, _ := newTestLimiter(DefaultRequestsPerWindow)

	for i := 1; i <= 50; i++ {
		ok, _ := r.Allow("alice")
		require.True(t, ok, "call %d should be allowed", i)
	}

	ok, retry := r.Allow("alice")
	assert.False(t, ok)
	assert.Equal(t, time.Hour, retry)

	w, found := r.Snapshot("alice")
	require.True(t, found)
	assert.Equal(t, 51, w.Count)
}

func TestRateLimiterFirstCallOpensWindow(t *testing.T) {
	r, clock := newTestLimiter(50)

	ok, _ := r.Allow("bob")
	assert.True(t, ok)

	w, found := r.Snapshot("bob")
	require.True(t, found)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.t, w.WindowStart)
}

func TestRateLimiterWindowReset(t *testing.T) {
	r, clock := newTestLimiter(2)

	r.Allow("alice")
	r.Allow("alice")
	ok, _ := r.Allow("alice")
	require.False(t, ok)

	// Exactly one window later is still inside it.
	clock.advance(time.Hour)
	ok, _ = r.Allow("alice")
	assert.False(t, ok)

	clock.advance(time.Nanosecond)
	ok, _ = r.Allow("alice")
	assert.True(t, ok)

	w, _ := r.Snapshot("alice")
	assert.Equal(t, 1, w.Count)
}

func TestRateLimiterRetryAfter(t *testing.T) {
	r, clock := newTestLimiter(1)

	r.Allow("alice")
	clock.advance(20 * time.Minute)

	ok, retry := r.Allow("alice")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Minute, retry)
}

func TestRateLimiterUsersIndependent(t *testing.T) {
	r, _ := newTestLimiter(1)

	ok, _ := r.Allow("alice")
	assert.True(t, ok)
	ok, _ = r.Allow("alice")
	assert.False(t, ok)

	ok, _ = r.Allow("bob")
	assert.True(t, ok)
}

func TestRateLimiterReset(t *testing.T) {
	r, _ := newTestLimiter(1)

	r.Allow("alice")
	r.Reset("alice")

	ok, _ := r.Allow("alice")
	assert.True(t, ok)
}

func TestRateLimiterSetLimit(t *testing.T) {
	r, _ := newTestLimiter(1)
	r.Allow("alice")

	r.SetLimit(3, 0)
	limit, window := r.Limit()
	assert.Equal(t, 3, limit)
	assert.Equal(t, DefaultWindow, window)

	ok, _ := r.Allow("alice")
	assert.True(t, ok, "raised limit applies to the open window")
}

func TestRateLimiterPrunesExpiredWindows(t *testing.T) {
	r, clock := newTestLimiter(1)

	for i := 0; i < pruneThreshold; i++ {
		r.Allow(string(rune('a'+i%26)) + time.Duration(i).String())
	}
	clock.advance(2 * time.Hour)
	r.Allow("newcomer")

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.windows, 1)
}

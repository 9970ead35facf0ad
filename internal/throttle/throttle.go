// Package throttle implements per-author admission control for the message
// pipeline: a fixed-window counter per author, rolled over lazily on the next
// call rather than by a timer.
//
// This limiter is deliberately not a token bucket. The product rule is
// "at most N messages per window, then silence until the window rolls over",
// and a denied call must neither reset nor extend the window. The HTTP edge
// keeps its own token-bucket limiter (see internal/http/middleware); the two
// protect different things.
package throttle

import (
	"sync"
	"time"
)

// window is one author's live counting window.
type window struct {
	startedAt time.Time
	count     int
	lastSeen  time.Time
}

// Limiter is a per-author fixed-window admission limiter.
//
// Windows are created on demand and stored in an internal map guarded by a
// mutex. Stale windows are evicted by Sweep, driven by the maintenance
// sweeper. This type is safe for concurrent use.
type Limiter struct {
	windowDur time.Duration
	max       int

	mu      sync.Mutex
	windows map[string]*window

	// now is a clock seam for tests.
	now func() time.Time
}

// NewLimiter constructs a Limiter admitting up to max messages per author
// within each windowDur. Values <= 0 are coerced to safe minimums.
func NewLimiter(windowDur time.Duration, max int) *Limiter {
	if windowDur <= 0 {
		windowDur = time.Minute
	}
	if max < 1 {
		max = 1
	}
	return &Limiter{
		windowDur: windowDur,
		max:       max,
		windows:   make(map[string]*window),
		now:       time.Now,
	}
}

// Allow records one arrival from authorID and reports whether it is admitted.
//
// If the author has no window, or the window is older than the configured
// duration, a fresh window starts with count 1 and the call is admitted.
// Otherwise the counter increments and the call is admitted iff the count is
// still within the per-window maximum. Denials keep counting against the
// same window; they never reset or extend it. Allow never blocks.
func (l *Limiter) Allow(authorID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[authorID]
	if !ok || now.Sub(w.startedAt) >= l.windowDur {
		l.windows[authorID] = &window{startedAt: now, count: 1, lastSeen: now}
		return true
	}

	w.count++
	w.lastSeen = now
	return w.count <= l.max
}

// Sweep evicts windows idle for longer than the window duration, returning
// the number of entries removed. Called periodically by the maintenance
// sweeper to bound memory; it never touches a window that is still live.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		if now.Sub(w.lastSeen) > l.windowDur {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live windows, for metrics and tests.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

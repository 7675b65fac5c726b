package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most max requests per identity within a trailing window.
// A single coarse mutex guards the whole mapping, which is plenty at webhook
// volumes and keeps the purge-check-append sequence atomic.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[string][]time.Time

	now func() time.Time
}

func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether identity may make a request now. Admitted requests
// consume a slot; denied requests do not. max <= 0 denies everything.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return false
	}

	now := l.now()
	recent := l.purge(l.windows[identity], now)

	if len(recent) >= l.max {
		l.windows[identity] = recent
		return false
	}

	l.windows[identity] = append(recent, now)
	return true
}

// purge drops timestamps older than the window, preserving order.
func (l *Limiter) purge(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Cleanup removes identities with no request inside the window, so idle
// senders don't accumulate in the map. Call periodically.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for identity, stamps := range l.windows {
		if len(l.purge(stamps, now)) == 0 {
			delete(l.windows, identity)
		}
	}
}

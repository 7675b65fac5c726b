package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(max, window)
	l.now = clock.Now
	return l, clock
}

func TestAllowUpToMax(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	assert.True(t, l.Allow("5511999990000"))
	assert.True(t, l.Allow("5511999990000"))
	assert.True(t, l.Allow("5511999990000"))
	assert.False(t, l.Allow("5511999990000"))
}

func TestFirstCallAlwaysAllowed(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	assert.True(t, l.Allow("new-identity"))
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
	assert.True(t, l.Allow("u2"))
}

func TestAllowedAgainAfterWindowElapses(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	assert.True(t, l.Allow("u1"))
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))

	clock.Advance(61 * time.Second)
	assert.True(t, l.Allow("u1"))
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)

	assert.True(t, l.Allow("u1"))
	clock.Advance(40 * time.Second)
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))

	// First timestamp falls out of the window; the second is still inside.
	clock.Advance(25 * time.Second)
	assert.True(t, l.Allow("u1"))
	assert.False(t, l.Allow("u1"))
}

func TestDeniedCallConsumesNoSlot(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)

	assert.True(t, l.Allow("u1"))
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("u1"))
	}

	clock.Advance(61 * time.Second)
	assert.True(t, l.Allow("u1"))
}

func TestZeroOrNegativeMaxDeniesEverything(t *testing.T) {
	for _, max := range []int{0, -1} {
		l, _ := newTestLimiter(max, time.Minute)
		assert.False(t, l.Allow("u1"), "max=%d", max)
	}
}

func TestCleanupDropsIdleIdentities(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)

	l.Allow("idle")
	clock.Advance(2 * time.Minute)
	l.Allow("fresh")

	l.Cleanup()

	l.mu.Lock()
	_, idle := l.windows["idle"]
	_, fresh := l.windows["fresh"]
	l.mu.Unlock()

	assert.False(t, idle)
	assert.True(t, fresh)
}

func TestConcurrentAllowNeverExceedsMax(t *testing.T) {
	l, _ := newTestLimiter(10, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Allow(fmt.Sprintf("u%d", i%3)) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 30, allowed)
}

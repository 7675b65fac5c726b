package bot

import (
	"sync"
	"time"
)

// userLocks serializes message processing per identity, so two deliveries
// from the same phone cannot interleave their context-load/append sequences.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// with runs fn while holding the per-identity mutex.
func (l *userLocks) with(identity string, fn func()) {
	l.mu.Lock()
	ul, ok := l.locks[identity]
	if !ok {
		ul = &userLock{}
		l.locks[identity] = ul
	}
	l.mu.Unlock()

	ul.mu.Lock()
	defer ul.mu.Unlock()

	ul.lastUsed = time.Now()
	fn()
}

// cleanup removes locks not used within maxAge to prevent memory leaks.
func (l *userLocks) cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for identity, ul := range l.locks {
		if now.Sub(ul.lastUsed) > maxAge {
			delete(l.locks, identity)
		}
	}
}

package memory

import (
	"context"
	"sync"
	"time"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one turn in a conversation. Immutable once appended.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps per-identity conversation history, bounded to a configured
// number of entries with oldest-first eviction on write.
type Store interface {
	// History returns the ordered history for identity, empty if unseen.
	History(ctx context.Context, identity string) ([]Entry, error)
	// Append adds entries for identity, creating the history if absent and
	// trimming the oldest entries once the configured maximum is exceeded.
	Append(ctx context.Context, identity string, entries ...Entry) error
	// Active returns the number of distinct identities with history.
	Active(ctx context.Context) (int, error)
	Close() error
}

// trim drops entries from the front until len(entries) <= max.
// Trimming happens on write only, never mid-read.
func trim(entries []Entry, max int) []Entry {
	if max > 0 && len(entries) > max {
		return entries[len(entries)-max:]
	}
	return entries
}

// MemoryStore is the default in-process Store. A single coarse mutex guards
// the whole mapping; history lives for the process lifetime.
type MemoryStore struct {
	mu            sync.Mutex
	max           int
	conversations map[string][]Entry
}

func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{
		max:           max,
		conversations: make(map[string][]Entry),
	}
}

func (s *MemoryStore) History(_ context.Context, identity string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.conversations[identity]
	out := make([]Entry, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, identity string, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[identity] = trim(append(s.conversations[identity], entries...), s.max)
	return nil
}

func (s *MemoryStore) Active(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations), nil
}

func (s *MemoryStore) Close() error { return nil }

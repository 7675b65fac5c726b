package bot

import "sync/atomic"

// Stats holds process-wide counters. The active conversation count is not
// tracked here — it is derived from the store's key count on demand.
type Stats struct {
	messages atomic.Int64
}

func (s *Stats) RecordMessage() {
	s.messages.Add(1)
}

func (s *Stats) MessagesProcessed() int64 {
	return s.messages.Load()
}

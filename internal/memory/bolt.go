package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

// BoltStore persists conversation history across restarts in a local bbolt
// file, one JSON-encoded history per identity.
type BoltStore struct {
	db  *bolt.DB
	max int
}

func NewBoltStore(path string, max int) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating conversations bucket: %w", err)
	}

	return &BoltStore{db: db, max: max}, nil
}

func (s *BoltStore) History(_ context.Context, identity string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(identity))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &entries)
	})
	return entries, err
}

func (s *BoltStore) Append(_ context.Context, identity string, entries ...Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)

		var history []Entry
		if v := b.Get([]byte(identity)); v != nil {
			if err := json.Unmarshal(v, &history); err != nil {
				return fmt.Errorf("decoding history for %s: %w", identity, err)
			}
		}
		history = trim(append(history, entries...), s.max)

		data, err := json.Marshal(history)
		if err != nil {
			return err
		}
		return b.Put([]byte(identity), data)
	})
}

func (s *BoltStore) Active(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(conversationsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

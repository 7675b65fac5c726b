package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conversation:"

// RedisStore keeps conversation history in an external Redis instance, one
// JSON blob per identity with a rolling TTL. Availability and durability are
// Redis's problem; the store only speaks its key-value contract.
type RedisStore struct {
	client *redis.Client
	max    int
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, url string, max int, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStore{client: client, max: max, ttl: ttl}, nil
}

func (s *RedisStore) History(ctx context.Context, identity string) ([]Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+identity).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", identity, err)
	}
	return entries, nil
}

func (s *RedisStore) Append(ctx context.Context, identity string, entries ...Entry) error {
	history, err := s.History(ctx, identity)
	if err != nil {
		return err
	}
	history = trim(append(history, entries...), s.max)

	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+identity, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scanning conversations: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

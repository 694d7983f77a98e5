package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the state under a single redis key. Like the file
// backend it is a whole-document read-modify-write store: concurrent
// writers against the same key race and the last writer wins.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the state document. A missing key is equivalent to empty state.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory key: %w", err)
	}
	return data, nil
}

// Save writes the full state document with no expiry.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write memory key: %w", err)
	}
	return nil
}

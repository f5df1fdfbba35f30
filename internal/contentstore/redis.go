package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quietloop/semcache/internal/cacheerr"
)

// RedisStore is a ContentStore backed by Redis's plain key/value
// operations: GET/SET under an opaque id, with no TTL — entries are
// immutable once written and the core never invalidates (§1 Non-goals).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client. prefix namespaces keys
// so the content store can share a Redis instance with other uses.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Get returns the text stored under id, or ok=false if absent.
func (s *RedisStore) Get(ctx context.Context, id string) (string, bool, error) {
	text, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, cacheerr.New(cacheerr.StoreUnavailable, fmt.Errorf("redis GET %s: %w", id, err))
	}
	return text, true, nil
}

// Put durably stores text under id. Redis acknowledges SET only once the
// write has been applied, matching §4.4's durability requirement.
func (s *RedisStore) Put(ctx context.Context, id string, text string) error {
	if err := s.client.Set(ctx, s.key(id), text, 0).Err(); err != nil {
		return cacheerr.New(cacheerr.StoreUnavailable, fmt.Errorf("redis SET %s: %w", id, err))
	}
	return nil
}

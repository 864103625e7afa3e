package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.WebhookDedup using Redis SET NX: the first
// sighting of a payload digest claims the key, every later sighting within
// the TTL is a replay.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed webhook dedup store.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "dedup:",
	}
}

// Seen reports whether digest was already recorded within ttl, recording it
// when it was not.
func (s *DedupStore) Seen(ctx context.Context, digest string, ttl time.Duration) (bool, error) {
	key := s.prefix + digest
	_, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, this digest was processed before.
			return true, nil
		}
		return false, fmt.Errorf("redis dedup check: %w", err)
	}
	return false, nil
}

package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strogmv/renodesk/internal/port"
)

// IdempotencyStore keeps processed message keys as expiring Redis keys.
type IdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

func NewIdempotencyStore(client redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: "renodesk:idem:"}
}

func (s *IdempotencyStore) Check(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

var _ port.IdempotencyStore = (*IdempotencyStore)(nil)

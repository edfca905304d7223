package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/pkg/logger"
	"github.com/strogmv/renodesk/internal/port"
)

// SuppressionCached is a read-through cache in front of a SuppressionRepository.
// Writes go to the base repository and drop the cached address once the
// surrounding transaction commits.
type SuppressionCached struct {
	base   port.SuppressionRepository
	client redis.Cmdable
	ttl    time.Duration
}

func NewSuppressionCached(base port.SuppressionRepository, client redis.Cmdable, ttl time.Duration) *SuppressionCached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SuppressionCached{base: base, client: client, ttl: ttl}
}

func suppressionKey(address string) string {
	return "renodesk:suppression:" + domain.NormalizeAddress(address)
}

func (c *SuppressionCached) FindByAddress(ctx context.Context, address string) ([]domain.SuppressionEntry, error) {
	key := suppressionKey(address)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entries []domain.SuppressionEntry
		if jerr := json.Unmarshal(raw, &entries); jerr == nil {
			return entries, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.From(ctx).Warn("suppression cache read failed", slog.Any("error", err))
	}

	entries, err := c.base.FindByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if body, jerr := json.Marshal(entries); jerr == nil {
		if serr := c.client.Set(ctx, key, body, c.ttl).Err(); serr != nil {
			logger.From(ctx).Warn("suppression cache write failed", slog.Any("error", serr))
		}
	}
	return entries, nil
}

func (c *SuppressionCached) Upsert(ctx context.Context, entry domain.SuppressionEntry) error {
	if err := c.base.Upsert(ctx, entry); err != nil {
		return err
	}
	c.invalidateAfterCommit(ctx, entry.EmailAddress)
	return nil
}

func (c *SuppressionCached) Deactivate(ctx context.Context, address string, typ domain.SuppressionType) (bool, error) {
	ok, err := c.base.Deactivate(ctx, address, typ)
	if err != nil {
		return false, err
	}
	c.invalidateAfterCommit(ctx, address)
	return ok, nil
}

func (c *SuppressionCached) invalidateAfterCommit(ctx context.Context, address string) {
	port.AfterCommit(ctx, func(ctx context.Context) { c.invalidate(ctx, address) })
}

func (c *SuppressionCached) invalidate(ctx context.Context, address string) {
	if err := c.client.Del(ctx, suppressionKey(address)).Err(); err != nil {
		logger.From(ctx).Warn("suppression cache invalidate failed", slog.String("recipient", address), slog.Any("error", err))
	}
}

var _ port.SuppressionRepository = (*SuppressionCached)(nil)

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/renodesk/internal/adapter/repository/memory"
	"github.com/strogmv/renodesk/internal/domain"
	"github.com/strogmv/renodesk/internal/port"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// stagedSuppressions holds writes made inside WithTx until fn returns,
// the way a database hides uncommitted rows from other connections.
type stagedSuppressions struct {
	*memory.SuppressionRepository
	mu      sync.Mutex
	pending []domain.SuppressionEntry
	inTx    bool
}

func (s *stagedSuppressions) Upsert(ctx context.Context, entry domain.SuppressionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inTx {
		return s.SuppressionRepository.Upsert(ctx, entry)
	}
	s.pending = append(s.pending, entry)
	return nil
}

func (s *stagedSuppressions) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.inTx = true
	s.mu.Unlock()
	txCtx, hooks := port.WithCommitHooks(ctx)
	err := fn(txCtx)

	s.mu.Lock()
	pending := s.pending
	s.pending, s.inTx = nil, false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, e := range pending {
		if uerr := s.SuppressionRepository.Upsert(ctx, e); uerr != nil {
			return uerr
		}
	}
	hooks.Run(ctx)
	return nil
}

func complaint(addr string) domain.SuppressionEntry {
	return domain.SuppressionEntry{
		EmailAddress:    addr,
		SuppressionType: domain.SuppressionComplaint,
		Reason:          "abuse",
		IsActive:        true,
		SuppressedAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestSuppressionKeyNormalizesAddress(t *testing.T) {
	assert.Equal(t, "renodesk:suppression:dana@example.com", suppressionKey("  Dana@Example.COM "))
}

func TestSuppressionCachedReadThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	base := memory.NewSuppressionRepository()
	require.NoError(t, base.Upsert(context.Background(), complaint("dana@example.com")))
	cache := NewSuppressionCached(base, client, time.Minute)
	ctx := context.Background()

	got, err := cache.FindByAddress(ctx, "Dana@Example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, mr.Exists("renodesk:suppression:dana@example.com"))
	assert.Equal(t, time.Minute, mr.TTL("renodesk:suppression:dana@example.com"))

	// A write that bypasses the cache stays invisible until the entry expires.
	_, err = base.Deactivate(ctx, "dana@example.com", domain.SuppressionComplaint)
	require.NoError(t, err)
	got, err = cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsActive)

	mr.FastForward(2 * time.Minute)
	got, err = cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsActive)
}

func TestSuppressionCachedCachesMisses(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSuppressionCached(memory.NewSuppressionRepository(), client, time.Minute)

	got, err := cache.FindByAddress(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, mr.Exists("renodesk:suppression:nobody@example.com"))
}

func TestSuppressionCachedWriteInvalidates(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSuppressionCached(memory.NewSuppressionRepository(), client, time.Minute)
	ctx := context.Background()

	_, err := cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.True(t, mr.Exists("renodesk:suppression:dana@example.com"))

	require.NoError(t, cache.Upsert(ctx, complaint("dana@example.com")))
	assert.False(t, mr.Exists("renodesk:suppression:dana@example.com"))
	got, err := cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)

	ok, err := cache.Deactivate(ctx, "dana@example.com", domain.SuppressionComplaint)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("renodesk:suppression:dana@example.com"))
	got, err = cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsActive)
}

func TestSuppressionCachedInvalidatesAfterCommit(t *testing.T) {
	_, client := newTestRedis(t)
	base := &stagedSuppressions{SuppressionRepository: memory.NewSuppressionRepository()}
	cache := NewSuppressionCached(base, client, 5*time.Minute)
	ctx := context.Background()

	err := base.WithTx(ctx, func(txCtx context.Context) error {
		if err := cache.Upsert(txCtx, complaint("dana@example.com")); err != nil {
			return err
		}
		// Another worker reads before the commit and caches the old state.
		got, err := cache.FindByAddress(ctx, "dana@example.com")
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
	require.NoError(t, err)

	got, err := cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SuppressionComplaint, got[0].SuppressionType)
	assert.True(t, domain.AnyActive(got))
}

func TestSuppressionCachedFeedbackTransactionThroughTxManager(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewSuppressionCached(memory.NewSuppressionRepository(), client, time.Minute)
	ctx := context.Background()

	_, err := cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)

	err = memory.TxManager{}.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, cache.Upsert(txCtx, complaint("dana@example.com")))
		assert.True(t, mr.Exists("renodesk:suppression:dana@example.com"), "invalidation waits for commit")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("renodesk:suppression:dana@example.com"))
}

func TestSuppressionCachedRedisFailureFallsBackToBase(t *testing.T) {
	mr, client := newTestRedis(t)
	base := memory.NewSuppressionRepository()
	require.NoError(t, base.Upsert(context.Background(), complaint("dana@example.com")))
	cache := NewSuppressionCached(base, client, time.Minute)
	ctx := context.Background()

	mr.SetError("ERR cache node failing")

	got, err := cache.FindByAddress(ctx, "dana@example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, cache.Upsert(ctx, complaint("eli@example.com")))
	ok, err := cache.Deactivate(ctx, "dana@example.com", domain.SuppressionComplaint)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.SetError("")
	got, err = cache.FindByAddress(ctx, "eli@example.com")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSuppressionCachedIgnoresCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	base := memory.NewSuppressionRepository()
	require.NoError(t, base.Upsert(context.Background(), complaint("dana@example.com")))
	cache := NewSuppressionCached(base, client, time.Minute)
	require.NoError(t, mr.Set("renodesk:suppression:dana@example.com", "{not json"))

	got, err := cache.FindByAddress(context.Background(), "dana@example.com")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

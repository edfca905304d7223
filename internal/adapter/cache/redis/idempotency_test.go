package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreSaveAndExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	seen, err := store.Check(ctx, "feedback:Bounce:fb-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Save(ctx, "feedback:Bounce:fb-1", time.Hour))
	seen, err = store.Check(ctx, "feedback:Bounce:fb-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("renodesk:idem:feedback:Bounce:fb-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Check(ctx, "feedback:Bounce:fb-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyStoreSurfacesRedisErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewIdempotencyStore(client)
	mr.SetError("ERR cache node failing")

	_, err := store.Check(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), "k", time.Minute))
}

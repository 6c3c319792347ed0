package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

var _ repository.ProcessedEventsStore = (*ProcessedEventsStore)(nil)

func newStore(t *testing.T) (*ProcessedEventsStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewProcessedEventsStore(client, zap.NewNop()), mr
}

func TestProcessedEventsStore_MarkAndCheck(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, mr := newStore(t)

	// Act
	before, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessed(ctx, "evt-1", time.Hour))
	after, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)

	// Assert
	require.False(t, before)
	require.True(t, after)
	require.True(t, mr.Exists("webhook:event:evt-1"))
	require.Equal(t, time.Hour, mr.TTL("webhook:event:evt-1"))
}

func TestProcessedEventsStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	require.NoError(t, store.MarkProcessed(ctx, "evt-1", time.Minute))

	mr.FastForward(2 * time.Minute)

	processed, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestProcessedEventsStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)
	mr.Close()

	_, err := store.IsProcessed(ctx, "evt-1")
	require.Error(t, err)

	err = store.MarkProcessed(ctx, "evt-1", time.Minute)
	require.Error(t, err)
}

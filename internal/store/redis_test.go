package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), server
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	missing, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.Set(ctx, "s-1", []byte(`{"id":"s-1"}`), time.Hour))
	require.True(t, server.Exists("arena:session:s-1"))
	require.Equal(t, time.Hour, server.TTL("arena:session:s-1"))

	payload, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"s-1"}`, string(payload))

	require.NoError(t, store.Delete(ctx, "s-1"))
	require.NoError(t, store.Delete(ctx, "s-1"))
	payload, err = store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestRedisStoreExpires(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s-2", []byte("{}"), time.Minute))
	server.FastForward(2 * time.Minute)

	payload, err := store.Get(ctx, "s-2")
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	store, server := newRedisStore(t)
	server.Close()

	_, err := store.Get(context.Background(), "s-3")
	require.Error(t, err)
	require.Error(t, store.Set(context.Background(), "s-3", []byte("{}"), time.Minute))
}

func TestRedisStoreSetVersionRejectsStaleWrites(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	written, err := store.SetVersion(ctx, "s-4", 3, []byte(`{"version":3}`), time.Hour)
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, time.Hour, server.TTL("arena:session:s-4"))

	written, err = store.SetVersion(ctx, "s-4", 3, []byte(`{"version":3,"node":"b"}`), time.Hour)
	require.NoError(t, err)
	require.False(t, written)
	written, err = store.SetVersion(ctx, "s-4", 1, []byte(`{"version":1}`), time.Hour)
	require.NoError(t, err)
	require.False(t, written)

	payload, err := store.Get(ctx, "s-4")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":3}`, string(payload))

	written, err = store.SetVersion(ctx, "s-4", 4, []byte(`{"version":4}`), 0)
	require.NoError(t, err)
	require.True(t, written)

	require.NoError(t, store.Delete(ctx, "s-4"))
	require.False(t, server.Exists("arena:session:s-4:version"))
	written, err = store.SetVersion(ctx, "s-4", 1, []byte(`{"version":1}`), time.Hour)
	require.NoError(t, err)
	require.True(t, written)
}

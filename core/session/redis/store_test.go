package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mbot/core/session"
	"github.com/m3rciful/mbot/core/session/redis"
	"github.com/m3rciful/mbot/core/session/sessiontest"
)

func newTestClient(t *testing.T) *backend.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore_Contract(t *testing.T) {
	store := redis.New(newTestClient(t))
	sessiontest.RunStoreContract(t, store)
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.New(client, redis.WithTTL(time.Minute))
	ctx := context.Background()

	sess := session.New()
	sess.Set("step", 1)
	require.NoError(t, store.Set(ctx, "u1", sess))

	mr.FastForward(2 * time.Minute)

	loaded, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len(), "expired session must read back empty")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.New(client, redis.WithPrefix("bots:alpha:"))
	ctx := context.Background()

	sess := session.New()
	sess.Set("k", "v")
	require.NoError(t, store.Set(ctx, "u2", sess))

	assert.True(t, mr.Exists("bots:alpha:u2"))
}

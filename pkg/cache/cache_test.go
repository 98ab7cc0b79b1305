package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

func services(t *testing.T) map[string]Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryCache(WithMemoryMaxSize(10))
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Service{
		"redis":  NewRedisCache(client, WithRedisPrefix("test")),
		"memory": mem,
	}
}

func TestSetGetDelete(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, svc.Set(ctx, "k", entry{Symbol: "ESZ4", Score: 0.7}, time.Minute))

			var got entry
			require.NoError(t, svc.Get(ctx, "k", &got))
			assert.Equal(t, entry{Symbol: "ESZ4", Score: 0.7}, got)

			ok, err := svc.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, svc.Delete(ctx, "k"))
			assert.ErrorIs(t, svc.Get(ctx, "k", &got), ErrCacheMiss)
		})
	}
}

func TestTryLockIsExclusive(t *testing.T) {
	for name, svc := range services(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := svc.TryLock(ctx, "job:evt-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = svc.TryLock(ctx, "job:evt-1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, svc.Unlock(ctx, "job:evt-1"))
			ok, err = svc.TryLock(ctx, "job:evt-1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRedisUnlockKeepsForeignLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisCache(client)
	b := NewRedisCache(client)
	ctx := context.Background()

	ok, err := a.TryLock(ctx, "job:evt-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Unlock(ctx, "job:evt-2"))
	ok, err = b.TryLock(ctx, "job:evt-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "b must not release a's lock")
}

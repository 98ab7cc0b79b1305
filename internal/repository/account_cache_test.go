package repository

import (
	"context"
	"testing"
	"time"

	"Aegis/internal/domain/models"
	pkgcache "Aegis/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	lookups int
}

func (s *countingStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.lookups++
	return s.MemoryStore.GetAccount(ctx, id)
}

func TestCachedAccounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()
	require.NoError(t, inner.PutAccount(ctx, &models.Account{ID: "acct-1", UserID: "user-1", Broker: "paper"}))

	cached := NewCachedAccounts(inner, pkgcache.NewRedisCache(client, pkgcache.WithRedisPrefix("test")), time.Minute)

	for i := 0; i < 3; i++ {
		a, err := cached.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", a.UserID)
		assert.Equal(t, "paper", a.Broker)
	}
	assert.Equal(t, 1, inner.lookups)

	_, err := cached.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = cached.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 3, inner.lookups, "misses are not cached")

	require.NoError(t, cached.Invalidate(ctx, "acct-1"))
	_, err = cached.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.lookups)

	assert.Same(t, inner, cached.Unwrap())
}

package repository

import (
	"context"
	"errors"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
	pkgcache "Aegis/pkg/cache"
)

// CachedAccounts serves GetAccount from a cache in front of an EventStore.
// Misses are not cached.
type CachedAccounts struct {
	repository.EventStore
	cache pkgcache.Service
	ttl   time.Duration
}

func NewCachedAccounts(store repository.EventStore, cache pkgcache.Service, ttl time.Duration) *CachedAccounts {
	return &CachedAccounts{EventStore: store, cache: cache, ttl: ttl}
}

func (c *CachedAccounts) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	key := "account:" + accountID

	var a models.Account
	err := c.cache.Get(ctx, key, &a)
	if err == nil {
		return &a, nil
	}

	acct, err := c.EventStore.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, acct, c.ttl)
	return acct, nil
}

// Unwrap returns the underlying store.
func (c *CachedAccounts) Unwrap() repository.EventStore { return c.EventStore }

// Invalidate drops a cached account.
func (c *CachedAccounts) Invalidate(ctx context.Context, accountID string) error {
	err := c.cache.Delete(ctx, "account:"+accountID)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil
	}
	return err
}

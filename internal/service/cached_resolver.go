package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"golang.org/x/sync/singleflight"
)

// flightTimeout bounds a shared computation, which outlives the caller that started it
const flightTimeout = 10 * time.Second

// CachedResolver serves effective sets from a ResolutionCache and falls back
// to the underlying resolver on a miss. Errors are never cached.
type CachedResolver struct {
	resolver PermissionResolver
	cache    ResolutionCache
	metrics  *Metrics
	group    singleflight.Group

	// generation advances on every invalidation; a computation that started
	// before an invalidation does not write its result back
	generation atomic.Uint64
}

// NewCachedResolver wraps resolver with cache
func NewCachedResolver(resolver PermissionResolver, cache ResolutionCache, metrics *Metrics) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    cache,
		metrics:  metrics,
	}
}

// EffectivePermissions returns the cached set or computes it. Concurrent
// misses for the same user and generation share one computation; each caller
// still gives up as soon as its own ctx ends.
func (c *CachedResolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, error) {
	if err := ctx.Err(); err != nil {
		return domain.PermissionSet{}, domain.NewStoreError("resolve permissions", err)
	}
	if set, ok := c.cache.Get(ctx, userID); ok {
		c.metrics.cacheHit()
		return set, nil
	}
	c.metrics.cacheMiss()

	// A check that starts after an invalidation never joins an older flight
	gen := c.generation.Load()
	key := fmt.Sprintf("%s:%d", userID, gen)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		set, err := c.resolver.EffectivePermissions(flightCtx, userID)
		if err != nil {
			return domain.PermissionSet{}, err
		}
		if c.generation.Load() == gen {
			c.cache.Set(flightCtx, userID, set)
		}
		return set, nil
	})

	select {
	case <-ctx.Done():
		return domain.PermissionSet{}, domain.NewStoreError("resolve permissions", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.PermissionSet{}, res.Err
		}
		return res.Val.(domain.PermissionSet), nil
	}
}

func (c *CachedResolver) HasPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	set, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(key), nil
}

func (c *CachedResolver) HasAnyPermission(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAny(keys...), nil
}

func (c *CachedResolver) HasAllPermissions(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAll(keys...), nil
}

// RoleNames is not cached; role checks always read the store
func (c *CachedResolver) RoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	return c.resolver.RoleNames(ctx, userID)
}

func (c *CachedResolver) CheckPermissions(ctx context.Context, userID uuid.UUID, keys []domain.PermissionKey) (map[domain.PermissionKey]bool, error) {
	set, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return checkAgainst(set, keys), nil
}

// InvalidateUser drops the cached set of one user
func (c *CachedResolver) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	c.generation.Add(1)
	c.cache.Invalidate(ctx, userID)
	c.metrics.invalidated("user")
}

// InvalidateAll drops every cached set
func (c *CachedResolver) InvalidateAll(ctx context.Context) {
	c.generation.Add(1)
	c.cache.Clear(ctx)
	c.metrics.invalidated("all")
}

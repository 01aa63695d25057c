package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/domain"
)

// DefaultCacheTTL is how long a resolved permission set stays fresh
const DefaultCacheTTL = 5 * time.Minute

const defaultCacheSize = 10000

// ResolutionCache stores effective permission sets per user
type ResolutionCache interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, bool)
	Set(ctx context.Context, userID uuid.UUID, set domain.PermissionSet)
	Invalidate(ctx context.Context, userID uuid.UUID)
	Clear(ctx context.Context)
	Close() error
}

type cacheEntry struct {
	set        domain.PermissionSet
	computedAt time.Time
}

// memoryCache is a bounded LRU of resolved sets. An entry is fresh while
// now - computedAt < ttl; stale entries are dropped on read.
type memoryCache struct {
	entries *lru.Cache[uuid.UUID, cacheEntry]
	ttl     time.Duration
	clock   Clock
}

// NewMemoryCache creates an in-process resolution cache
func NewMemoryCache(cfg *config.CacheConfig, clock Clock) (ResolutionCache, error) {
	size := cfg.MaxSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = SystemClock()
	}

	entries, err := lru.New[uuid.UUID, cacheEntry](size)
	if err != nil {
		return nil, err
	}

	return &memoryCache{
		entries: entries,
		ttl:     ttl,
		clock:   clock,
	}, nil
}

func (c *memoryCache) Get(_ context.Context, userID uuid.UUID) (domain.PermissionSet, bool) {
	entry, ok := c.entries.Get(userID)
	if !ok {
		return domain.PermissionSet{}, false
	}

	if c.clock.Now().Sub(entry.computedAt) >= c.ttl {
		c.entries.Remove(userID)
		return domain.PermissionSet{}, false
	}

	return entry.set, true
}

func (c *memoryCache) Set(_ context.Context, userID uuid.UUID, set domain.PermissionSet) {
	c.entries.Add(userID, cacheEntry{set: set, computedAt: c.clock.Now()})
}

func (c *memoryCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.entries.Remove(userID)
}

func (c *memoryCache) Clear(_ context.Context) {
	c.entries.Purge()
}

func (c *memoryCache) Close() error {
	return nil
}

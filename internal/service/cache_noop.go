package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
)

// noopCache never stores anything; every lookup resolves against the store
type noopCache struct{}

// NewNoopCache creates a no-op cache that doesn't store anything
func NewNoopCache() ResolutionCache {
	return &noopCache{}
}

func (c *noopCache) Get(context.Context, uuid.UUID) (domain.PermissionSet, bool) {
	return domain.PermissionSet{}, false
}

func (c *noopCache) Set(context.Context, uuid.UUID, domain.PermissionSet) {}

func (c *noopCache) Invalidate(context.Context, uuid.UUID) {}

func (c *noopCache) Clear(context.Context) {}

func (c *noopCache) Close() error {
	return nil
}

package service

import (
	"fmt"
	"strings"

	"github.com/pguia/crm-authz/internal/config"
	"github.com/sirupsen/logrus"
)

// NewCache creates the appropriate cache implementation based on configuration
func NewCache(cfg *config.CacheConfig, clock Clock, log logrus.FieldLogger) (ResolutionCache, error) {
	// If explicitly disabled, use no-op cache
	if !cfg.Enabled {
		return NewNoopCache(), nil
	}

	switch strings.ToLower(cfg.Type) {
	case "none", "":
		return NewNoopCache(), nil

	case "memory":
		// Per-process; invalidations do not reach other replicas
		return NewMemoryCache(cfg, clock)

	case "redis":
		cache, err := NewRedisCache(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return cache, nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: none, memory, redis)", cfg.Type)
	}
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/repository"
)

// PermissionResolver answers what a user may do
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, error)
	HasPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error)
	HasAnyPermission(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error)
	HasAllPermissions(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error)
	RoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error)
	CheckPermissions(ctx context.Context, userID uuid.UUID, keys []domain.PermissionKey) (map[domain.PermissionKey]bool, error)
}

type permissionResolver struct {
	userRepo       repository.UserRepository
	assignmentRepo repository.AssignmentRepository
	metrics        *Metrics
}

// NewPermissionResolver creates a resolver that reads the store on every call
func NewPermissionResolver(
	userRepo repository.UserRepository,
	assignmentRepo repository.AssignmentRepository,
	metrics *Metrics,
) PermissionResolver {
	return &permissionResolver{
		userRepo:       userRepo,
		assignmentRepo: assignmentRepo,
		metrics:        metrics,
	}
}

// EffectivePermissions computes (role keys ∪ granted) − denied
func (r *permissionResolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) (domain.PermissionSet, error) {
	defer r.metrics.observeResolve(time.Now())

	if err := r.ensureUser(ctx, userID); err != nil {
		return domain.PermissionSet{}, err
	}

	roleKeys, err := r.assignmentRepo.RolePermissionKeys(ctx, userID)
	if err != nil {
		return domain.PermissionSet{}, err
	}

	overrides, err := r.assignmentRepo.ListUserPermissions(ctx, userID)
	if err != nil {
		return domain.PermissionSet{}, err
	}

	var granted, denied []domain.PermissionKey
	for _, o := range overrides {
		if o.Key() == "" {
			continue
		}
		if o.Granted {
			granted = append(granted, o.Key())
		} else {
			denied = append(denied, o.Key())
		}
	}

	return domain.Merge(roleKeys, granted, denied), nil
}

// HasPermission lets a direct override decide before touching role permissions
func (r *permissionResolver) HasPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	if err := r.ensureUser(ctx, userID); err != nil {
		return false, err
	}

	override, err := r.assignmentRepo.GetUserPermission(ctx, userID, key)
	if err != nil {
		return false, err
	}
	if override != nil {
		return override.Granted, nil
	}

	return r.assignmentRepo.UserHasRolePermission(ctx, userID, key)
}

func (r *permissionResolver) HasAnyPermission(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAny(keys...), nil
}

func (r *permissionResolver) HasAllPermissions(ctx context.Context, userID uuid.UUID, keys ...domain.PermissionKey) (bool, error) {
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAll(keys...), nil
}

func (r *permissionResolver) RoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	if err := r.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	return r.assignmentRepo.ListRoleNames(ctx, userID)
}

// CheckPermissions reports each requested key against one effective set
func (r *permissionResolver) CheckPermissions(ctx context.Context, userID uuid.UUID, keys []domain.PermissionKey) (map[domain.PermissionKey]bool, error) {
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return checkAgainst(set, keys), nil
}

func (r *permissionResolver) ensureUser(ctx context.Context, userID uuid.UUID) error {
	exists, err := r.userRepo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

func checkAgainst(set domain.PermissionSet, keys []domain.PermissionKey) map[domain.PermissionKey]bool {
	results := make(map[domain.PermissionKey]bool, len(keys))
	for _, k := range keys {
		results[k] = set.Has(k)
	}
	return results
}

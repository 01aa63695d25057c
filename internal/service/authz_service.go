package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"github.com/pguia/crm-authz/internal/repository"
	"github.com/sirupsen/logrus"
)

// CacheInvalidator drops cached permission sets after a mutation
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID)
	InvalidateAll(ctx context.Context)
}

// AuthzService is the administrative API over the catalog, roles and assignments.
// Every mutation that can change a user's effective set invalidates that user.
type AuthzService struct {
	permissionRepo repository.PermissionRepository
	roleRepo       repository.RoleRepository
	assignmentRepo repository.AssignmentRepository
	userRepo       repository.UserRepository
	resolver       PermissionResolver
	invalidator    CacheInvalidator
	log            logrus.FieldLogger
}

// NewAuthzService creates a new authorization service
func NewAuthzService(
	permissionRepo repository.PermissionRepository,
	roleRepo repository.RoleRepository,
	assignmentRepo repository.AssignmentRepository,
	userRepo repository.UserRepository,
	resolver PermissionResolver,
	invalidator CacheInvalidator,
	log logrus.FieldLogger,
) *AuthzService {
	return &AuthzService{
		permissionRepo: permissionRepo,
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		resolver:       resolver,
		invalidator:    invalidator,
		log:            log,
	}
}

// RoleInput describes a role to create
type RoleInput struct {
	Name           string
	Description    string
	Color          string
	PermissionKeys []string
}

// RolePatch carries the fields to change; nil fields are left alone.
// A non-nil PermissionKeys replaces the role's permission set.
type RolePatch struct {
	Name           *string
	Description    *string
	Color          *string
	PermissionKeys *[]string
}

// RoleSummary is a role with the number of users holding it
type RoleSummary struct {
	domain.Role
	UserCount int64 `json:"user_count"`
}

// UserPermissions is the administrative view of one user's authorization state
type UserPermissions struct {
	User      *domain.User            `json:"user"`
	Roles     []domain.Role           `json:"roles"`
	Effective domain.PermissionSet    `json:"effective"`
	Direct    []domain.UserPermission `json:"direct"`
}

// Stats summarises the catalog and assignments
type Stats struct {
	TotalPermissions    int64            `json:"total_permissions"`
	TotalRoles          int64            `json:"total_roles"`
	SystemRoles         int64            `json:"system_roles"`
	CustomRoles         int64            `json:"custom_roles"`
	PermissionsByModule map[string]int64 `json:"permissions_by_module"`
	UserRoleAssignments int64            `json:"user_role_assignments"`
}

// =============== Permission Catalog ===============

// CreatePermission adds a catalog entry
func (s *AuthzService) CreatePermission(ctx context.Context, key, name, description, module string) (*domain.Permission, error) {
	permKey, err := domain.ParsePermissionKey(key)
	if err != nil {
		return nil, err
	}
	name, module = strings.TrimSpace(name), strings.TrimSpace(module)
	if name == "" || module == "" {
		return nil, fmt.Errorf("%w: permission name and module are required", domain.ErrInvalidKey)
	}

	existing, err := s.permissionRepo.GetByKey(ctx, permKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: permission %q already exists", domain.ErrInvalidAssignment, permKey)
	}

	permission := &domain.Permission{
		Key:         permKey,
		Name:        name,
		Description: description,
		Module:      module,
	}
	if err := s.permissionRepo.Create(ctx, permission); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"key": permKey, "module": module}).Info("permission created")
	return permission, nil
}

// GetPermission returns a catalog entry by id
func (s *AuthzService) GetPermission(ctx context.Context, id uuid.UUID) (*domain.Permission, error) {
	permission, err := s.permissionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if permission == nil {
		return nil, fmt.Errorf("%w: permission %s", domain.ErrNotFound, id)
	}
	return permission, nil
}

// UpdatePermission changes the descriptive fields of an entry; keys are immutable
func (s *AuthzService) UpdatePermission(ctx context.Context, id uuid.UUID, name, description, module string) (*domain.Permission, error) {
	permission, err := s.GetPermission(ctx, id)
	if err != nil {
		return nil, err
	}

	if name = strings.TrimSpace(name); name != "" {
		permission.Name = name
	}
	if module = strings.TrimSpace(module); module != "" {
		permission.Module = module
	}
	permission.Description = description

	if err := s.permissionRepo.Update(ctx, permission); err != nil {
		return nil, err
	}
	return permission, nil
}

// DeletePermission removes an entry that no role or user references
func (s *AuthzService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	permission, err := s.GetPermission(ctx, id)
	if err != nil {
		return err
	}

	refs, err := s.permissionRepo.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: permission %q is in use by %d role or user assignments", domain.ErrInvalidAssignment, permission.Key, refs)
	}

	if err := s.permissionRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.WithField("key", permission.Key).Info("permission deleted")
	return nil
}

// ListPermissions lists the catalog ordered by module and name
func (s *AuthzService) ListPermissions(ctx context.Context, module string) ([]domain.Permission, error) {
	return s.permissionRepo.List(ctx, strings.TrimSpace(module))
}

// GroupedPermissions lists the catalog bucketed by module
func (s *AuthzService) GroupedPermissions(ctx context.Context) (map[string][]domain.Permission, error) {
	permissions, err := s.permissionRepo.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return domain.GroupByModule(permissions), nil
}

// =============== Roles ===============

// CreateRole creates a custom role with the given permission keys
func (s *AuthzService) CreateRole(ctx context.Context, input RoleInput) (*domain.Role, error) {
	name, err := domain.ParseRoleName(input.Name)
	if err != nil {
		return nil, err
	}

	existing, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, name)
	}

	permissions, err := s.resolvePermissions(ctx, input.PermissionKeys)
	if err != nil {
		return nil, err
	}

	role := &domain.Role{
		Name:        name,
		Description: input.Description,
		Color:       strings.TrimSpace(input.Color),
		Permissions: permissions,
	}
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"role": name, "permissions": len(permissions)}).Info("role created")
	return role, nil
}

// GetRole returns a role by id with its permissions
func (s *AuthzService) GetRole(ctx context.Context, id uuid.UUID) (*domain.Role, error) {
	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role %s", domain.ErrNotFound, id)
	}
	return role, nil
}

// UpdateRole applies patch to a custom role and invalidates every holder
func (s *AuthzService) UpdateRole(ctx context.Context, id uuid.UUID, patch RolePatch) (*domain.Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, fmt.Errorf("%w: system roles cannot be modified", domain.ErrInvalidAssignment)
	}

	if patch.Name != nil {
		name, err := domain.ParseRoleName(*patch.Name)
		if err != nil {
			return nil, err
		}
		if name != role.Name {
			clash, err := s.roleRepo.GetByName(ctx, name)
			if err != nil {
				return nil, err
			}
			if clash != nil {
				return nil, fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, name)
			}
			role.Name = name
		}
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	if patch.Color != nil && strings.TrimSpace(*patch.Color) != "" {
		role.Color = strings.TrimSpace(*patch.Color)
	}

	var permissionIDs []uuid.UUID
	if patch.PermissionKeys != nil {
		permissions, err := s.resolvePermissions(ctx, *patch.PermissionKeys)
		if err != nil {
			return nil, err
		}
		for _, p := range permissions {
			permissionIDs = append(permissionIDs, p.ID)
		}
	}

	if patch.PermissionKeys == nil {
		if err := s.roleRepo.Update(ctx, role); err != nil {
			return nil, err
		}
	} else {
		if err := s.roleRepo.UpdateWithPermissions(ctx, role, permissionIDs); err != nil {
			return nil, err
		}
		s.invalidateHolders(ctx, role.ID)
	}

	s.log.WithField("role", role.Name).Info("role updated")
	return s.GetRole(ctx, id)
}

// DeleteRole removes a custom role nobody holds
func (s *AuthzService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system roles cannot be deleted", domain.ErrInvalidAssignment)
	}

	holders, err := s.roleRepo.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if holders > 0 {
		return fmt.Errorf("%w: role %q is assigned to %d users", domain.ErrInvalidAssignment, role.Name, holders)
	}

	if err := s.roleRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.WithField("role", role.Name).Info("role deleted")
	return nil
}

// ListRoles lists roles with their permissions and holder counts
func (s *AuthzService) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.roleRepo.CountAssignmentsByRole(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]RoleSummary, 0, len(roles))
	for _, r := range roles {
		summaries = append(summaries, RoleSummary{Role: r, UserCount: counts[r.ID]})
	}
	return summaries, nil
}

// =============== Assignments ===============

// AssignRole gives a user a role. Assigning a role twice is an invalid assignment.
func (s *AuthzService) AssignRole(ctx context.Context, userID, roleID uuid.UUID, assignedBy *uuid.UUID) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	err = s.assignmentRepo.AssignRole(ctx, &domain.UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidateUser(ctx, userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "role": role.Name}).Info("role assigned")
	return nil
}

// RemoveRole takes a role away from a user
func (s *AuthzService) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	removed, err := s.assignmentRepo.RemoveRole(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: user does not have this role", domain.ErrNotFound)
	}

	s.invalidator.InvalidateUser(ctx, userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "role_id": roleID}).Info("role removed")
	return nil
}

// SetDirectPermission grants (granted=true) or denies (granted=false) a key for one user.
// A deny overrides every role grant of the same key.
func (s *AuthzService) SetDirectPermission(ctx context.Context, userID uuid.UUID, key string, granted bool, assignedBy *uuid.UUID) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	permission, err := s.permissionByKey(ctx, key)
	if err != nil {
		return err
	}

	err = s.assignmentRepo.UpsertUserPermission(ctx, &domain.UserPermission{
		UserID:       userID,
		PermissionID: permission.ID,
		Granted:      granted,
		AssignedBy:   assignedBy,
	})
	if err != nil {
		return err
	}

	s.invalidator.InvalidateUser(ctx, userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "key": permission.Key, "granted": granted}).Info("direct permission set")
	return nil
}

// RemoveDirectPermission drops a user's override so role grants apply again
func (s *AuthzService) RemoveDirectPermission(ctx context.Context, userID uuid.UUID, key string) error {
	permission, err := s.permissionByKey(ctx, key)
	if err != nil {
		return err
	}

	removed, err := s.assignmentRepo.RemoveUserPermission(ctx, userID, permission.ID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: user has no direct override for %q", domain.ErrNotFound, permission.Key)
	}

	s.invalidator.InvalidateUser(ctx, userID)
	s.log.WithFields(logrus.Fields{"user_id": userID, "key": permission.Key}).Info("direct permission removed")
	return nil
}

// GetUserPermissions returns the user, their roles, the effective set and direct overrides
func (s *AuthzService) GetUserPermissions(ctx context.Context, userID uuid.UUID) (*UserPermissions, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	assignments, err := s.assignmentRepo.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]domain.Role, 0, len(assignments))
	for _, a := range assignments {
		if a.Role != nil {
			roles = append(roles, *a.Role)
		}
	}

	direct, err := s.assignmentRepo.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective, err := s.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserPermissions{
		User:      user,
		Roles:     roles,
		Effective: effective,
		Direct:    direct,
	}, nil
}

// CheckPermission reports whether the user holds key
func (s *AuthzService) CheckPermission(ctx context.Context, userID uuid.UUID, key string) (bool, error) {
	permKey, err := domain.ParsePermissionKey(key)
	if err != nil {
		return false, err
	}
	return s.resolver.HasPermission(ctx, userID, permKey)
}

// CheckPermissions reports each key for one user
func (s *AuthzService) CheckPermissions(ctx context.Context, userID uuid.UUID, keys []string) (map[domain.PermissionKey]bool, error) {
	permKeys, err := domain.ParsePermissionKeys(keys)
	if err != nil {
		return nil, err
	}
	return s.resolver.CheckPermissions(ctx, userID, permKeys)
}

// UserRoleNames lists the names of the roles assigned to the user
func (s *AuthzService) UserRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	return s.resolver.RoleNames(ctx, userID)
}

// Stats aggregates catalog and assignment counts
func (s *AuthzService) Stats(ctx context.Context) (*Stats, error) {
	byModule, err := s.permissionRepo.CountByModule(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignmentRepo.CountUserRoles(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		PermissionsByModule: byModule,
		TotalRoles:          int64(len(roles)),
		UserRoleAssignments: assignments,
	}
	for _, n := range byModule {
		stats.TotalPermissions += n
	}
	for _, r := range roles {
		if r.IsSystem {
			stats.SystemRoles++
		} else {
			stats.CustomRoles++
		}
	}
	return stats, nil
}

// ClearCache drops every cached permission set
func (s *AuthzService) ClearCache(ctx context.Context) {
	s.invalidator.InvalidateAll(ctx)
	s.log.Info("permission cache cleared")
}

func (s *AuthzService) ensureUser(ctx context.Context, userID uuid.UUID) error {
	exists, err := s.userRepo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *AuthzService) permissionByKey(ctx context.Context, key string) (*domain.Permission, error) {
	permKey, err := domain.ParsePermissionKey(key)
	if err != nil {
		return nil, err
	}
	permission, err := s.permissionRepo.GetByKey(ctx, permKey)
	if err != nil {
		return nil, err
	}
	if permission == nil {
		return nil, fmt.Errorf("%w: permission %q", domain.ErrNotFound, permKey)
	}
	return permission, nil
}

// resolvePermissions maps keys to catalog rows, failing if any key is unknown
func (s *AuthzService) resolvePermissions(ctx context.Context, keys []string) ([]domain.Permission, error) {
	permKeys, err := domain.ParsePermissionKeys(keys)
	if err != nil {
		return nil, err
	}
	if len(permKeys) == 0 {
		return nil, nil
	}

	permissions, err := s.permissionRepo.GetByKeys(ctx, permKeys)
	if err != nil {
		return nil, err
	}

	found := make(map[domain.PermissionKey]struct{}, len(permissions))
	for _, p := range permissions {
		found[p.Key] = struct{}{}
	}
	var unknown []string
	for _, k := range permKeys {
		if _, ok := found[k]; !ok {
			unknown = append(unknown, k.String())
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown permission keys %s", domain.ErrNotFound, strings.Join(unknown, ", "))
	}
	return permissions, nil
}

// invalidateHolders drops the cached sets of everyone holding the role
func (s *AuthzService) invalidateHolders(ctx context.Context, roleID uuid.UUID) {
	holders, err := s.roleRepo.ListUserIDs(ctx, roleID)
	if err != nil {
		// Holders unknown: drop everything rather than serve stale sets
		s.log.WithError(err).WithField("role_id", roleID).Warn("listing role holders failed, clearing cache")
		s.invalidator.InvalidateAll(ctx)
		return
	}
	for _, userID := range holders {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

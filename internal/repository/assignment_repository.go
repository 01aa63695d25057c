package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssignmentRepository handles user-role links and direct user permission overrides
type AssignmentRepository interface {
	AssignRole(ctx context.Context, assignment *domain.UserRole) error
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	ListUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.UserRole, error)
	ListRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error)
	RolePermissionKeys(ctx context.Context, userID uuid.UUID) ([]domain.PermissionKey, error)
	UserHasRolePermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error)
	CountUserRoles(ctx context.Context) (int64, error)

	UpsertUserPermission(ctx context.Context, override *domain.UserPermission) error
	RemoveUserPermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error)
	ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]domain.UserPermission, error)
	GetUserPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (*domain.UserPermission, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// AssignRole inserts the link. An existing (user, role) pair is an invalid assignment.
func (r *assignmentRepository) AssignRole(ctx context.Context, assignment *domain.UserRole) error {
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(assignment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: user already has this role", domain.ErrInvalidAssignment)
	}
	return domain.NewStoreError("assign role", err)
}

// RemoveRole deletes the link and reports whether it existed
func (r *assignmentRepository) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&domain.UserRole{})
	if result.Error != nil {
		return false, domain.NewStoreError("remove role", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *assignmentRepository) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]domain.UserRole, error) {
	var assignments []domain.UserRole
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Role.Permissions").
		Where("user_id = ?", userID).
		Order("assigned_at ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, domain.NewStoreError("list user roles", err)
	}
	return assignments, nil
}

func (r *assignmentRepository) ListRoleNames(ctx context.Context, userID uuid.UUID) ([]domain.RoleName, error) {
	var names []domain.RoleName
	err := r.db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, domain.NewStoreError("list role names", err)
	}
	return names, nil
}

// RolePermissionKeys returns the distinct keys granted through the user's roles
func (r *assignmentRepository) RolePermissionKeys(ctx context.Context, userID uuid.UUID) ([]domain.PermissionKey, error) {
	var keys []domain.PermissionKey
	err := r.db.WithContext(ctx).
		Table("user_roles").
		Distinct("permissions.key").
		Joins("JOIN role_permissions ON role_permissions.role_id = user_roles.role_id").
		Joins("JOIN permissions ON permissions.id = role_permissions.permission_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("permissions.key", &keys).Error
	if err != nil {
		return nil, domain.NewStoreError("list role permission keys", err)
	}
	return keys, nil
}

// UserHasRolePermission answers with one EXISTS query over the user's roles
func (r *assignmentRepository) UserHasRolePermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = ? AND p.key = ?
		)`, userID, key).Scan(&exists).Error
	if err != nil {
		return false, domain.NewStoreError("check role permission", err)
	}
	return exists, nil
}

func (r *assignmentRepository) CountUserRoles(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.UserRole{}).Count(&count).Error; err != nil {
		return 0, domain.NewStoreError("count user roles", err)
	}
	return count, nil
}

// UpsertUserPermission creates the override or flips its granted flag
func (r *assignmentRepository) UpsertUserPermission(ctx context.Context, override *domain.UserPermission) error {
	now := time.Now()
	if override.AssignedAt.IsZero() {
		override.AssignedAt = now
	}
	override.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted", "assigned_by", "updated_at"}),
		}).
		Create(override).Error
	return domain.NewStoreError("set user permission", err)
}

// RemoveUserPermission deletes the override and reports whether it existed
func (r *assignmentRepository) RemoveUserPermission(ctx context.Context, userID, permissionID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND permission_id = ?", userID, permissionID).
		Delete(&domain.UserPermission{})
	if result.Error != nil {
		return false, domain.NewStoreError("remove user permission", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *assignmentRepository) ListUserPermissions(ctx context.Context, userID uuid.UUID) ([]domain.UserPermission, error) {
	var overrides []domain.UserPermission
	err := r.db.WithContext(ctx).
		Preload("Permission").
		Where("user_id = ?", userID).
		Find(&overrides).Error
	if err != nil {
		return nil, domain.NewStoreError("list user permissions", err)
	}
	return overrides, nil
}

// GetUserPermission returns the override for key, or nil when there is none
func (r *assignmentRepository) GetUserPermission(ctx context.Context, userID uuid.UUID, key domain.PermissionKey) (*domain.UserPermission, error) {
	var override domain.UserPermission
	err := r.db.WithContext(ctx).
		Preload("Permission").
		Where("user_id = ? AND permission_id = (SELECT id FROM permissions WHERE key = ?)", userID, key).
		First(&override).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewStoreError("get user permission", err)
	}
	return &override, nil
}

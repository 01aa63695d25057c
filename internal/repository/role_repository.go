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

// RoleRepository handles role data operations
type RoleRepository interface {
	Create(ctx context.Context, role *domain.Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Role, error)
	GetByName(ctx context.Context, name domain.RoleName) (*domain.Role, error)
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]domain.Role, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	UpdateWithPermissions(ctx context.Context, role *domain.Role, permissionIDs []uuid.UUID) error
	AddPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) (int64, error)
	CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error)
	CountAssignmentsByRole(ctx context.Context) (map[uuid.UUID]int64, error)
	ListUserIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

// Create inserts the role and links any permissions already set on it
func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	permissions := role.Permissions
	role.Permissions = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(role).Error; err != nil {
			return err
		}
		return insertRolePermissions(tx, role.ID, permissionIDs(permissions))
	})
	role.Permissions = permissions

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, role.Name)
	}
	return domain.NewStoreError("create role", err)
}

func (r *roleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewStoreError("get role", err)
	}
	return &role, nil
}

func (r *roleRepository) GetByName(ctx context.Context, name domain.RoleName) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewStoreError("get role by name", err)
	}
	return &role, nil
}

// Update writes the role's own columns; permissions go through ReplacePermissions
func (r *roleRepository) Update(ctx context.Context, role *domain.Role) error {
	err := updateRoleColumns(r.db.WithContext(ctx), role)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, role.Name)
	}
	return domain.NewStoreError("update role", err)
}

// UpdateWithPermissions writes the role's columns and swaps its permission
// set in one transaction; on failure neither change is kept
func (r *roleRepository) UpdateWithPermissions(ctx context.Context, role *domain.Role, permissionIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateRoleColumns(tx, role); err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}
		return insertRolePermissions(tx, role.ID, permissionIDs)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: role %q already exists", domain.ErrInvalidAssignment, role.Name)
	}
	return domain.NewStoreError("update role", err)
}

func updateRoleColumns(tx *gorm.DB, role *domain.Role) error {
	return tx.Model(role).Select("name", "description", "color").Updates(role).Error
}

// Delete removes the role together with its permission links
func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Role{}, "id = ?", id).Error
	})
	return domain.NewStoreError("delete role", err)
}

func (r *roleRepository) List(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB {
			return db.Order("permissions.module ASC").Order("permissions.name ASC")
		}).
		Order("name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, domain.NewStoreError("list roles", err)
	}
	return roles, nil
}

// ReplacePermissions swaps the role's permission set in a single transaction
func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}
		if err := insertRolePermissions(tx, roleID, permissionIDs); err != nil {
			return err
		}
		return tx.Model(&domain.Role{}).Where("id = ?", roleID).Update("updated_at", time.Now()).Error
	})
	return domain.NewStoreError("replace role permissions", err)
}

// AddPermissions links permissions the role does not have yet and reports how many were added
func (r *roleRepository) AddPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) (int64, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rolePermissionRows(roleID, permissionIDs))
	if result.Error != nil {
		return 0, domain.NewStoreError("add role permissions", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *roleRepository) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.UserRole{}).Where("role_id = ?", roleID).Count(&count).Error
	if err != nil {
		return 0, domain.NewStoreError("count role assignments", err)
	}
	return count, nil
}

// CountAssignmentsByRole returns holder counts keyed by role id; unassigned roles are absent
func (r *roleRepository) CountAssignmentsByRole(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		RoleID uuid.UUID
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.UserRole{}).
		Select("role_id, COUNT(*) AS count").
		Group("role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.NewStoreError("count assignments by role", err)
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.RoleID] = row.Count
	}
	return counts, nil
}

// ListUserIDs returns every user holding the role
func (r *roleRepository) ListUserIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&domain.UserRole{}).Where("role_id = ?", roleID).Pluck("user_id", &ids).Error
	if err != nil {
		return nil, domain.NewStoreError("list role holders", err)
	}
	return ids, nil
}

func insertRolePermissions(tx *gorm.DB, roleID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Create(rolePermissionRows(roleID, ids)).Error
}

func rolePermissionRows(roleID uuid.UUID, ids []uuid.UUID) []domain.RolePermission {
	rows := make([]domain.RolePermission, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, domain.RolePermission{RoleID: roleID, PermissionID: id})
	}
	return rows
}

func permissionIDs(permissions []domain.Permission) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(permissions))
	for _, p := range permissions {
		ids = append(ids, p.ID)
	}
	return ids
}

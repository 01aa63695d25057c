package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pguia/crm-authz/internal/domain"
	"gorm.io/gorm"
)

// PermissionRepository handles permission catalog data operations
type PermissionRepository interface {
	Create(ctx context.Context, permission *domain.Permission) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Permission, error)
	GetByKey(ctx context.Context, key domain.PermissionKey) (*domain.Permission, error)
	GetByKeys(ctx context.Context, keys []domain.PermissionKey) ([]domain.Permission, error)
	Update(ctx context.Context, permission *domain.Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, module string) ([]domain.Permission, error)
	CountReferences(ctx context.Context, id uuid.UUID) (int64, error)
	CountByModule(ctx context.Context) (map[string]int64, error)
}

type permissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, permission *domain.Permission) error {
	err := r.db.WithContext(ctx).Create(permission).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: permission %q already exists", domain.ErrInvalidAssignment, permission.Key)
	}
	return domain.NewStoreError("create permission", err)
}

func (r *permissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Permission, error) {
	var permission domain.Permission
	err := r.db.WithContext(ctx).First(&permission, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewStoreError("get permission", err)
	}
	return &permission, nil
}

func (r *permissionRepository) GetByKey(ctx context.Context, key domain.PermissionKey) (*domain.Permission, error) {
	var permission domain.Permission
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&permission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewStoreError("get permission by key", err)
	}
	return &permission, nil
}

// GetByKeys returns the permissions matching keys; unknown keys are simply absent
func (r *permissionRepository) GetByKeys(ctx context.Context, keys []domain.PermissionKey) ([]domain.Permission, error) {
	var permissions []domain.Permission
	if len(keys) == 0 {
		return permissions, nil
	}
	err := r.db.WithContext(ctx).Where("key IN ?", keys).Find(&permissions).Error
	if err != nil {
		return nil, domain.NewStoreError("get permissions by key", err)
	}
	return permissions, nil
}

// Update writes the mutable columns; the key never changes
func (r *permissionRepository) Update(ctx context.Context, permission *domain.Permission) error {
	err := r.db.WithContext(ctx).
		Model(permission).
		Select("name", "description", "module").
		Updates(permission).Error
	return domain.NewStoreError("update permission", err)
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Delete(&domain.Permission{}, "id = ?", id).Error
	return domain.NewStoreError("delete permission", err)
}

// List returns the catalog ordered by module then name, optionally filtered by module
func (r *permissionRepository) List(ctx context.Context, module string) ([]domain.Permission, error) {
	var permissions []domain.Permission
	query := r.db.WithContext(ctx).Model(&domain.Permission{})

	if module != "" {
		query = query.Where("module = ?", module)
	}

	err := query.Order("module ASC").Order("name ASC").Find(&permissions).Error
	if err != nil {
		return nil, domain.NewStoreError("list permissions", err)
	}
	return permissions, nil
}

// CountReferences counts role and direct user rows pointing at the permission
func (r *permissionRepository) CountReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)

	var roleRefs int64
	if err := db.Model(&domain.RolePermission{}).Where("permission_id = ?", id).Count(&roleRefs).Error; err != nil {
		return 0, domain.NewStoreError("count role references", err)
	}

	var userRefs int64
	if err := db.Model(&domain.UserPermission{}).Where("permission_id = ?", id).Count(&userRefs).Error; err != nil {
		return 0, domain.NewStoreError("count user references", err)
	}

	return roleRefs + userRefs, nil
}

func (r *permissionRepository) CountByModule(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Module string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Permission{}).
		Select("module, COUNT(*) AS count").
		Group("module").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.NewStoreError("count permissions by module", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Module] = row.Count
	}
	return counts, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRoleColor is applied to roles created without a color
const DefaultRoleColor = "#2196F3"

// Role is a named bundle of permissions.
// System roles are seeded and cannot be edited or deleted through the mutation API.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name        RoleName     `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Color       string       `gorm:"type:varchar(16);not null;default:'#2196F3'" json:"color"`
	IsSystem    bool         `gorm:"default:false;not null" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Role
func (Role) TableName() string {
	return "roles"
}

// BeforeCreate hook to generate UUID and default color if not set
func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Color == "" {
		r.Color = DefaultRoleColor
	}
	return nil
}

// HasPermission checks if the role carries the given key
func (r *Role) HasPermission(key PermissionKey) bool {
	for _, perm := range r.Permissions {
		if perm.Key == key {
			return true
		}
	}
	return false
}

// PermissionKeys lists the keys attached to the role
func (r *Role) PermissionKeys() []PermissionKey {
	keys := make([]PermissionKey, 0, len(r.Permissions))
	for _, perm := range r.Permissions {
		keys = append(keys, perm.Key)
	}
	return keys
}

// RolePermission is the join entity between Role and Permission.
// The composite primary key keeps (role, permission) unique.
type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"role_id"`
	PermissionID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for RolePermission
func (RolePermission) TableName() string {
	return "role_permissions"
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole links a user to a role
type UserRole struct {
	UserID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoleID     uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"role_id"`
	Role       *Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"role,omitempty"`
	AssignedBy *uuid.UUID `gorm:"type:uuid" json:"assigned_by,omitempty"`
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`
}

// TableName specifies the table name for UserRole
func (UserRole) TableName() string {
	return "user_roles"
}

// UserPermission is a direct override layered on top of role-derived permissions.
// Granted=false is an explicit deny and wins over any role grant.
type UserPermission struct {
	UserID       uuid.UUID   `gorm:"type:uuid;primaryKey" json:"user_id"`
	PermissionID uuid.UUID   `gorm:"type:uuid;primaryKey;index" json:"permission_id"`
	Permission   *Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:RESTRICT" json:"permission,omitempty"`
	Granted      bool        `gorm:"not null" json:"granted"`
	AssignedBy   *uuid.UUID  `gorm:"type:uuid" json:"assigned_by,omitempty"`
	AssignedAt   time.Time   `gorm:"not null" json:"assigned_at"`
	UpdatedAt    time.Time   `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for UserPermission
func (UserPermission) TableName() string {
	return "user_permissions"
}

// Key returns the key of the overridden permission, or "" when it was not loaded
func (up *UserPermission) Key() PermissionKey {
	if up.Permission == nil {
		return ""
	}
	return up.Permission.Key
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserStatus is the account state checked during authentication
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the minimal account record the authorization core relies on.
// Profile data owned by other modules lives in Attributes.
type User struct {
	ID         uuid.UUID         `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name       string            `gorm:"type:varchar(255);not null" json:"name"`
	Email      string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Status     UserStatus        `gorm:"type:varchar(16);not null;default:'ACTIVE'" json:"status"`
	Attributes datatypes.JSONMap `gorm:"type:jsonb" json:"attributes,omitempty"` // e.g. {"department": "Sales"}
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to generate UUID and status if not set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// IsActive reports whether the account may authenticate
func (u *User) IsActive() bool {
	return u.Status == "" || u.Status == UserStatusActive
}

// Department returns the "department" attribute, if any
func (u *User) Department() string {
	if u.Attributes == nil {
		return ""
	}
	dep, _ := u.Attributes["department"].(string)
	return dep
}

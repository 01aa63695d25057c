package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Permission is an immutable catalog entry describing one capability
type Permission struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Key         PermissionKey `gorm:"type:varchar(100);uniqueIndex;not null" json:"key"`
	Name        string        `gorm:"type:varchar(255);not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Module      string        `gorm:"type:varchar(100);index;not null" json:"module"` // e.g., "Leads", "Admin"
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Permission
func (Permission) TableName() string {
	return "permissions"
}

// BeforeCreate hook to generate UUID if not set
func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// GroupByModule buckets permissions by their module, preserving input order within each bucket
func GroupByModule(permissions []Permission) map[string][]Permission {
	grouped := make(map[string][]Permission)
	for _, p := range permissions {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	return grouped
}

// SortPermissions orders permissions by module, then name
func SortPermissions(permissions []Permission) {
	sort.SliceStable(permissions, func(i, j int) bool {
		if permissions[i].Module != permissions[j].Module {
			return permissions[i].Module < permissions[j].Module
		}
		return permissions[i].Name < permissions[j].Name
	})
}

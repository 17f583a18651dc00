package models

import (
	"time"

	"github.com/middlebury/dynamic-add-users/internal/role"
)

// SiteRole is the role a user holds in a site. A user without a row is not a member.
type SiteRole struct {
	// UserID is the local user.
	UserID uint64 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	// SiteID is the site.
	SiteID uint64 `gorm:"primaryKey;autoIncrement:false;index" json:"site_id"`
	// Role is the assigned role name.
	Role role.Role `gorm:"type:varchar(64);not null" json:"role"`
	// UpdatedAt is the timestamp of the last change (managed by GORM).
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the database table name for the SiteRole model.
func (SiteRole) TableName() string {
	return "site_roles"
}

// All returns every model for auto migration.
func All() []any {
	return []any{
		&User{},
		&SiteRole{},
		&Registration{},
		&SyncedMembership{},
		&SyncLease{},
		&Setting{},
	}
}

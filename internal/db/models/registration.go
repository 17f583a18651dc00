package models

import (
	"time"

	"github.com/middlebury/dynamic-add-users/internal/role"
)

// Registration records that a site wants an external group kept in sync at a role.
// There is at most one registration per (site, group).
type Registration struct {
	// SiteID is the site the group is synced into.
	SiteID uint64 `gorm:"primaryKey;autoIncrement:false" json:"site_id"`
	// GroupID is the opaque external group identifier.
	GroupID string `gorm:"primaryKey;size:191" json:"group_id"`
	// GroupLabel is a cached display label. Never used for identity.
	GroupLabel string `gorm:"size:255" json:"group_label"`
	// Role is granted to every member of the group.
	Role role.Role `gorm:"type:varchar(64);not null" json:"role"`
	// LastSync is the time of the last successful group sync, nil until the first one.
	LastSync *time.Time `json:"last_sync"`
}

// TableName specifies the database table name for the Registration model.
func (Registration) TableName() string {
	return "sync_groups"
}

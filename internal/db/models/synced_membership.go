package models

// SyncedMembership marks a user as placed into a site because of a group.
// The set for one (site, group) is the snapshot taken by the last group sync.
type SyncedMembership struct {
	SiteID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	GroupID string `gorm:"primaryKey;size:191"`
	UserID  uint64 `gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName specifies the database table name for the SyncedMembership model.
func (SyncedMembership) TableName() string {
	return "synced_memberships"
}

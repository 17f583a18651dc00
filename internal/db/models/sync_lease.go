package models

// SyncLease serialises group syncs of the same (site, group).
// A lease whose ExpiresAt lies in the past may be taken over.
type SyncLease struct {
	SiteID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	GroupID string `gorm:"primaryKey;size:191"`
	// Holder is a random token identifying the running sync.
	Holder string `gorm:"size:64;not null"`
	// ExpiresAt is a unix timestamp in milliseconds.
	ExpiresAt int64 `gorm:"not null"`
}

// TableName specifies the database table name for the SyncLease model.
func (SyncLease) TableName() string {
	return "sync_leases"
}

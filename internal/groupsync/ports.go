package groupsync

import (
	"context"
	"time"

	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/role"
)

// Provisioner resolves directory records to local users.
type Provisioner interface {
	GetOrCreate(ctx context.Context, rec directory.UserRecord) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	FindByID(ctx context.Context, id uint64) (*models.User, error)
}

// RoleAssigner reads and changes site role assignments.
// GrantRole fails with apperr KindAlreadyStrongerRole when nothing needs to change.
type RoleAssigner interface {
	CurrentRole(ctx context.Context, userID, siteID uint64) (role.Role, error)
	GrantRole(ctx context.Context, userID, siteID uint64, r role.Role) error
	RevokeRole(ctx context.Context, userID, siteID uint64) error
}

// Store persists registrations, synced membership snapshots and sync leases.
type Store interface {
	GetRegistration(ctx context.Context, siteID uint64, groupID string) (*models.Registration, error)
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	ListSiteRegistrations(ctx context.Context, siteID uint64) ([]models.Registration, error)
	RegistrationsForGroups(ctx context.Context, groupIDs []string) ([]models.Registration, error)
	RegistrationsSyncedForUser(ctx context.Context, userID uint64) ([]models.Registration, error)
	ReplaceRegistration(ctx context.Context, reg models.Registration) error
	DeleteRegistration(ctx context.Context, siteID uint64, groupID string) error

	SyncedUsers(ctx context.Context, siteID uint64, groupID string) ([]uint64, error)
	ReplaceSnapshot(ctx context.Context, siteID uint64, groupID string, userIDs []uint64, at time.Time) error
	MarkSynced(ctx context.Context, siteID uint64, groupID string, userID uint64) error
	UnmarkSynced(ctx context.Context, siteID uint64, groupID string, userID uint64) error

	AcquireLease(ctx context.Context, siteID uint64, groupID, holder string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, siteID uint64, groupID, holder string) error
}

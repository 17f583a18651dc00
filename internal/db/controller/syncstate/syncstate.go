// Package syncstate stores group sync registrations, synced membership
// snapshots and the per-(site, group) sync lease.
package syncstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
)

const (
	siteGroupQueryPattern = "site_id = ? AND group_id = ?"
	registrationOrder     = "site_id, group_id"
)

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrGroupIDEmpty is returned for an empty external group id.
	ErrGroupIDEmpty = errors.New("group id can not be empty")
)

// Store is the gorm backed sync state.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store on db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	return &Store{db: db, now: time.Now}, nil
}

// WithClock replaces the lease clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now

	return &c
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// GetRegistration returns the registration of (site, group) or an apperr NotFound.
func (s *Store) GetRegistration(ctx context.Context, siteID uint64, groupID string) (*models.Registration, error) {
	var reg models.Registration

	err := s.conn(ctx).Where(siteGroupQueryPattern, siteID, groupID).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "syncstate.GetRegistration",
			fmt.Sprintf("no registration for site %d group %q", siteID, groupID))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}

	return &reg, nil
}

// ListRegistrations returns every registration ordered by site and group.
func (s *Store) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	var regs []models.Registration

	if err := s.conn(ctx).Order(registrationOrder).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	return regs, nil
}

// ListSiteRegistrations returns the registrations of one site ordered by group.
func (s *Store) ListSiteRegistrations(ctx context.Context, siteID uint64) ([]models.Registration, error) {
	var regs []models.Registration

	if err := s.conn(ctx).Where("site_id = ?", siteID).Order("group_id").Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations of site %d: %w", siteID, err)
	}

	return regs, nil
}

// RegistrationsForGroups returns all registrations, in any site, of the given groups.
func (s *Store) RegistrationsForGroups(ctx context.Context, groupIDs []string) ([]models.Registration, error) {
	var regs []models.Registration

	if len(groupIDs) == 0 {
		return regs, nil
	}

	if err := s.conn(ctx).Where("group_id IN ?", groupIDs).Order(registrationOrder).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations for groups: %w", err)
	}

	return regs, nil
}

// RegistrationsSyncedForUser returns the registrations userID is recorded as synced into.
func (s *Store) RegistrationsSyncedForUser(ctx context.Context, userID uint64) ([]models.Registration, error) {
	var regs []models.Registration

	err := s.conn(ctx).
		Joins("JOIN synced_memberships sm ON sm.site_id = sync_groups.site_id AND sm.group_id = sync_groups.group_id").
		Where("sm.user_id = ?", userID).
		Order("sync_groups.site_id, sync_groups.group_id").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list synced registrations of user %d: %w", userID, err)
	}

	return regs, nil
}

// ReplaceRegistration deletes any registration of (reg.SiteID, reg.GroupID)
// and inserts reg with a null last sync time.
func (s *Store) ReplaceRegistration(ctx context.Context, reg models.Registration) error {
	if reg.GroupID == "" {
		return ErrGroupIDEmpty
	}

	reg.LastSync = nil

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(siteGroupQueryPattern, reg.SiteID, reg.GroupID).
			Delete(&models.Registration{}).Error; err != nil {
			return fmt.Errorf("failed to delete registration: %w", err)
		}

		if err := tx.Create(&reg).Error; err != nil {
			return fmt.Errorf("failed to create registration: %w", err)
		}

		return nil
	})
}

// DeleteRegistration removes the registration and its synced memberships.
func (s *Store) DeleteRegistration(ctx context.Context, siteID uint64, groupID string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(siteGroupQueryPattern, siteID, groupID).
			Delete(&models.SyncedMembership{}).Error; err != nil {
			return fmt.Errorf("failed to delete synced memberships: %w", err)
		}

		if err := tx.Where(siteGroupQueryPattern, siteID, groupID).
			Delete(&models.Registration{}).Error; err != nil {
			return fmt.Errorf("failed to delete registration: %w", err)
		}

		return nil
	})
}

// SyncedUsers returns the snapshot of (site, group) ordered by user id.
func (s *Store) SyncedUsers(ctx context.Context, siteID uint64, groupID string) ([]uint64, error) {
	var ids []uint64

	err := s.conn(ctx).Model(&models.SyncedMembership{}).
		Where(siteGroupQueryPattern, siteID, groupID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load synced users: %w", err)
	}

	return ids, nil
}

// ReplaceSnapshot swaps the snapshot of (site, group) for userIDs and stamps
// the registration's last sync time, in one transaction.
func (s *Store) ReplaceSnapshot(ctx context.Context, siteID uint64, groupID string, userIDs []uint64, at time.Time) error {
	rows := make([]models.SyncedMembership, 0, len(userIDs))
	seen := make(map[uint64]struct{}, len(userIDs))

	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		rows = append(rows, models.SyncedMembership{SiteID: siteID, GroupID: groupID, UserID: id})
	}

	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(siteGroupQueryPattern, siteID, groupID).
			Delete(&models.SyncedMembership{}).Error; err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to write snapshot: %w", err)
			}
		}

		if err := tx.Model(&models.Registration{}).
			Where(siteGroupQueryPattern, siteID, groupID).
			Update("last_sync", at).Error; err != nil {
			return fmt.Errorf("failed to stamp last sync: %w", err)
		}

		return nil
	})
}

// MarkSynced records a single user as synced into (site, group).
func (s *Store) MarkSynced(ctx context.Context, siteID uint64, groupID string, userID uint64) error {
	row := models.SyncedMembership{SiteID: siteID, GroupID: groupID, UserID: userID}

	if err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to mark user %d synced: %w", userID, err)
	}

	return nil
}

// UnmarkSynced removes a single user from the snapshot of (site, group).
func (s *Store) UnmarkSynced(ctx context.Context, siteID uint64, groupID string, userID uint64) error {
	err := s.conn(ctx).
		Where(siteGroupQueryPattern+" AND user_id = ?", siteID, groupID, userID).
		Delete(&models.SyncedMembership{}).Error
	if err != nil {
		return fmt.Errorf("failed to unmark user %d: %w", userID, err)
	}

	return nil
}

// AcquireLease takes the (site, group) lease for holder until now+ttl.
// An expired lease, or one already held by holder, is taken over.
// A live lease of another holder yields an apperr ConcurrencyConflict.
func (s *Store) AcquireLease(ctx context.Context, siteID uint64, groupID, holder string, ttl time.Duration) error {
	now := s.now()
	expires := now.Add(ttl).UnixMilli()

	lease := models.SyncLease{SiteID: siteID, GroupID: groupID, Holder: holder, ExpiresAt: expires}

	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lease)
	if res.Error != nil {
		return fmt.Errorf("failed to insert lease: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return nil
	}

	res = s.conn(ctx).Model(&models.SyncLease{}).
		Where(siteGroupQueryPattern+" AND (expires_at < ? OR holder = ?)", siteID, groupID, now.UnixMilli(), holder).
		Updates(map[string]any{"holder": holder, "expires_at": expires})
	if res.Error != nil {
		return fmt.Errorf("failed to take over lease: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindConcurrencyConflict, "syncstate.AcquireLease",
			fmt.Sprintf("site %d group %q is being synced", siteID, groupID))
	}

	return nil
}

// ReleaseLease drops the lease if holder still owns it.
func (s *Store) ReleaseLease(ctx context.Context, siteID uint64, groupID, holder string) error {
	err := s.conn(ctx).
		Where(siteGroupQueryPattern+" AND holder = ?", siteID, groupID, holder).
		Delete(&models.SyncLease{}).Error
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

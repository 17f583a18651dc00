// Package siterole stores the role each user holds in each site.
package siterole

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/role"
)

const userSiteQueryPattern = "user_id = ? AND site_id = ?"

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrHierarchyNil is returned when no role hierarchy is given.
	ErrHierarchyNil = errors.New("role hierarchy is nil")
)

// Store assigns site roles in the site_roles table.
type Store struct {
	db        *gorm.DB
	hierarchy *role.Hierarchy
}

// New returns a Store on db that orders roles with h.
func New(db *gorm.DB, h *role.Hierarchy) (*Store, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	if h == nil {
		return nil, ErrHierarchyNil
	}

	return &Store{db: db, hierarchy: h}, nil
}

func (s *Store) validRole(op string, r role.Role) error {
	if r == role.None || !s.hierarchy.Known(r) {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("unknown role %q", string(r)))
	}

	return nil
}

func currentRole(tx *gorm.DB, userID, siteID uint64) (role.Role, error) {
	var sr models.SiteRole

	err := tx.Where(userSiteQueryPattern, userID, siteID).First(&sr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return role.None, nil
	}

	if err != nil {
		return role.None, fmt.Errorf("failed to load role of user %d in site %d: %w", userID, siteID, err)
	}

	return sr.Role, nil
}

func upsert(tx *gorm.DB, userID, siteID uint64, r role.Role) error {
	row := models.SiteRole{UserID: userID, SiteID: siteID, Role: r, UpdatedAt: time.Now()}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to assign role to user %d in site %d: %w", userID, siteID, err)
	}

	return nil
}

// CurrentRole returns the role of userID in siteID, role.None for non members.
func (s *Store) CurrentRole(ctx context.Context, userID, siteID uint64) (role.Role, error) {
	return currentRole(s.db.WithContext(ctx), userID, siteID)
}

// GrantRole assigns r unless the user already holds an equal or stronger role,
// in which case an apperr AlreadyStrongerRole is returned and nothing changes.
func (s *Store) GrantRole(ctx context.Context, userID, siteID uint64, r role.Role) error {
	const op = "siterole.GrantRole"

	if err := s.validRole(op, r); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := currentRole(tx, userID, siteID)
		if err != nil {
			return err
		}

		if existing != role.None && s.hierarchy.Known(existing) && s.hierarchy.IsStrongerOrEqual(existing, r) {
			return apperr.New(apperr.KindAlreadyStrongerRole, op,
				fmt.Sprintf("user %d already is %s in site %d", userID, existing, siteID))
		}

		return upsert(tx, userID, siteID, r)
	})
}

// SetRole assigns r unconditionally, as a site administrator would.
func (s *Store) SetRole(ctx context.Context, userID, siteID uint64, r role.Role) error {
	if err := s.validRole("siterole.SetRole", r); err != nil {
		return err
	}

	return upsert(s.db.WithContext(ctx), userID, siteID, r)
}

// RevokeRole removes the user from the site. Revoking a non member is a no-op.
func (s *Store) RevokeRole(ctx context.Context, userID, siteID uint64) error {
	err := s.db.WithContext(ctx).Where(userSiteQueryPattern, userID, siteID).Delete(&models.SiteRole{}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke role of user %d in site %d: %w", userID, siteID, err)
	}

	return nil
}

// Members lists the role assignments of a site ordered by user.
func (s *Store) Members(ctx context.Context, siteID uint64) ([]models.SiteRole, error) {
	var rows []models.SiteRole

	if err := s.db.WithContext(ctx).Where("site_id = ?", siteID).Order("user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list members of site %d: %w", siteID, err)
	}

	return rows, nil
}

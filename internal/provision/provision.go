// Package provision resolves directory records to local user accounts,
// creating accounts on first sight.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/uniuri"
)

const (
	passwordLen       = 32
	replacedEmailMark = "-old-replaced"
	maxSearchResults  = 50
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// UserLookup is the directory call used to settle email conflicts.
type UserLookup interface {
	GetUser(ctx context.Context, login string) (directory.UserRecord, error)
}

// Service creates and finds local users.
type Service struct {
	db       *gorm.DB
	dir      UserLookup
	validate *validator.Validate
}

// New returns a Service. dir may be nil, then email conflicts are never settled.
func New(db *gorm.DB, dir UserLookup) (*Service, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	return &Service{
		db:       db,
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// GetOrCreate returns the local user with rec.Login, creating it from rec if needed.
// An existing user is returned whatever the record holds. Only a record that
// has to be created is validated: an invalid one fails with apperr KindValidation,
// and so does an email already used by an account whose login still exists in
// the directory.
func (s *Service) GetOrCreate(ctx context.Context, rec directory.UserRecord) (*models.User, error) {
	const op = "provision.GetOrCreate"

	if rec.Login == "" {
		return nil, apperr.New(apperr.KindValidation, op, "record has no login")
	}

	user, err := s.FindByLogin(ctx, rec.Login)
	if err == nil {
		return user, nil
	}

	if !apperr.IsNotFound(err) {
		return nil, err
	}

	if err = s.validate.Struct(rec); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("record %q: %w", rec.Login, err))
	}

	return s.create(ctx, op, rec, true)
}

func (s *Service) create(ctx context.Context, op string, rec directory.UserRecord, settle bool) (*models.User, error) {
	var holder models.User

	err := s.db.WithContext(ctx).Where("email = ?", rec.Email).First(&holder).Error

	switch {
	case err == nil:
		if !settle {
			return nil, apperr.New(apperr.KindValidation, op, "email "+rec.Email+" is already in use")
		}

		if errSettle := s.settleEmailConflict(ctx, op, &holder, rec); errSettle != nil {
			return nil, errSettle
		}

		return s.create(ctx, op, rec, false)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to check email of %q: %w", rec.Login, err)
	}

	user := models.User{
		Login:       rec.Login,
		Email:       rec.Email,
		Nicename:    rec.Nicename,
		Nickname:    rec.Nickname,
		DisplayName: rec.DisplayName,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Password:    models.HashPassword(uniuri.NewLen(passwordLen)),
		Active:      true,
	}

	if err = s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", rec.Login, err)
	}

	log.Info().Str("login", user.Login).Uint64("user_id", user.ID).Msg("user provisioned from directory")

	return &user, nil
}

// settleEmailConflict moves the email of holder aside when holder's login is
// gone from the directory. Otherwise the conflict is reported.
func (s *Service) settleEmailConflict(ctx context.Context, op string, holder *models.User, rec directory.UserRecord) error {
	conflict := apperr.New(apperr.KindValidation, op,
		fmt.Sprintf("email %s of %q is used by %q", rec.Email, rec.Login, holder.Login))

	if s.dir == nil {
		return conflict
	}

	_, err := s.dir.GetUser(ctx, holder.Login)
	if err == nil {
		return conflict
	}

	if !apperr.IsNotFound(err) {
		return fmt.Errorf("failed to check directory for %q: %w", holder.Login, err)
	}

	replaced := ReplacedEmail(holder.Email)

	if err = s.db.WithContext(ctx).Model(holder).Update("email", replaced).Error; err != nil {
		return fmt.Errorf("failed to move email of %q aside: %w", holder.Login, err)
	}

	log.Warn().
		Str("login", holder.Login).
		Str("email", replaced).
		Str("new_login", rec.Login).
		Msg("email of a user missing from the directory was replaced")

	return nil
}

// ReplacedEmail turns local@domain into local-old-replaced@domain.
func ReplacedEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email + replacedEmailMark
	}

	return email[:at] + replacedEmailMark + email[at:]
}

// FindByLogin returns the local user with login or an apperr NotFound.
func (s *Service) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).Where("login = ?", login).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "provision.FindByLogin", login)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", login, err)
	}

	return &user, nil
}

// FindByID returns the local user with id or an apperr NotFound.
func (s *Service) FindByID(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "provision.FindByID", fmt.Sprintf("user %d", id))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}

	return &user, nil
}

// SearchUsers merges directory results with local users matching query that
// the directory did not return. Directory results come first.
func (s *Service) SearchUsers(ctx context.Context, query string, found []directory.UserRecord) ([]directory.UserRecord, error) {
	out := make([]directory.UserRecord, 0, len(found))
	seen := make(map[string]struct{}, len(found))

	for _, r := range found {
		seen[r.Login] = struct{}{}
		out = append(out, r)
	}

	q := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var local []models.User

	err := s.db.WithContext(ctx).
		Where("LOWER(login) LIKE ? OR LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", q, q, q).
		Order("login").
		Limit(maxSearchResults).
		Find(&local).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search local users: %w", err)
	}

	for _, u := range local {
		if _, dup := seen[u.Login]; dup {
			continue
		}

		out = append(out, directory.UserRecord{
			Login:       u.Login,
			Email:       u.Email,
			Nicename:    u.Nicename,
			Nickname:    u.Nickname,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			DisplayName: u.DisplayName,
		})
	}

	return out, nil
}

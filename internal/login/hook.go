package login

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
)

// ErrDependencyNil is returned by NewHook when a collaborator is missing.
var ErrDependencyNil = errors.New("login: mapper, directory, users and syncer are required")

// Users resolves directory records to local users.
type Users interface {
	GetOrCreate(ctx context.Context, rec directory.UserRecord) (*models.User, error)
}

// Syncer applies a user's current groups.
type Syncer interface {
	SyncUserAcrossGroups(ctx context.Context, userID uint64, groupIDs []string) ([]groupsync.Change, error)
}

// Result is the outcome of a login sync.
type Result struct {
	ExternalID string             `json:"external_id,omitempty"`
	UserID     uint64             `json:"user_id,omitempty"`
	Groups     []string           `json:"groups,omitempty"`
	Changes    []groupsync.Change `json:"changes"`
	// Notice explains why no sync ran.
	Notice string `json:"notice,omitempty"`
}

// Hook runs the group sync of a user that just logged in.
type Hook struct {
	mapper Mapper
	dir    directory.Directory
	users  Users
	syncer Syncer
}

// NewHook returns a Hook.
func NewHook(mapper Mapper, dir directory.Directory, users Users, syncer Syncer) (*Hook, error) {
	if mapper == nil || dir == nil || users == nil || syncer == nil {
		return nil, ErrDependencyNil
	}

	return &Hook{mapper: mapper, dir: dir, users: users, syncer: syncer}, nil
}

func skippable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation, apperr.KindWrongEntityKind:
		return true
	default:
		return false
	}
}

// OnLogin maps attrs to an external id, provisions the user and syncs their
// groups. A login the directory does not know about is not an error: the
// result carries a notice and no changes.
func (h *Hook) OnLogin(ctx context.Context, attrs Attributes) (Result, error) {
	logger := log.With().Str("login", attrs.Login).Logger()

	id, err := h.mapper.ExternalID(ctx, attrs)
	if err != nil {
		return Result{}, err
	}

	if id == "" {
		logger.Debug().Msg("login has no external id, skipping group sync")

		return Result{Notice: "no external id for this login"}, nil
	}

	res := Result{ExternalID: id}

	rec, err := h.dir.GetUser(ctx, id)
	if err != nil {
		return notice(logger, res, err, "user is not in the directory")
	}

	user, err := h.users.GetOrCreate(ctx, rec)
	if err != nil {
		return notice(logger, res, err, "user could not be provisioned")
	}

	res.UserID = user.ID

	groups, err := h.dir.GetGroupsForUser(ctx, id)
	if err != nil {
		return notice(logger, res, err, "groups of the user could not be read")
	}

	res.Groups = groups

	res.Changes, err = h.syncer.SyncUserAcrossGroups(ctx, user.ID, groups)
	if err != nil {
		return res, err
	}

	logger.Info().Str("external_id", id).Int("groups", len(groups)).Int("changes", len(res.Changes)).
		Msg("login group sync done")

	return res, nil
}

func notice(logger zerolog.Logger, res Result, err error, msg string) (Result, error) {
	if !skippable(err) {
		return res, err
	}

	logger.Info().Err(err).Str("external_id", res.ExternalID).Msg(msg)
	res.Notice = msg

	return res, nil
}

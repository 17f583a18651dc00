// Package directory serves user and group searches against the directory.
package directory

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	dir "github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/web/handler"
)

const (
	// UsersPath searches users.
	UsersPath = "/directory/users"
	// GroupsPath searches groups.
	GroupsPath = "/directory/groups"
)

// LocalUsers merges local accounts into directory results.
type LocalUsers interface {
	SearchUsers(ctx context.Context, query string, found []dir.UserRecord) ([]dir.UserRecord, error)
}

// Service is the directory search handler service.
type Service struct {
	dir   dir.Directory
	local LocalUsers
}

var (
	// Handler is the directory search handler.
	Handler = Service{}
)

// Init registers the routes on router.
func (s *Service) Init(router fiber.Router, d dir.Directory, local LocalUsers) {
	if router == nil || d == nil || local == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	s.dir = d
	s.local = local

	router.Get(UsersPath, s.Users)
	router.Get(GroupsPath, s.Groups)
}

func searchQuery(c fiber.Ctx) (string, error) {
	q := c.Query("search")
	if q == "" {
		return "", apperr.New(apperr.KindValidation, "directory.search", "search is required")
	}

	return q, nil
}

// Users searches the directory and local users.
func (s *Service) Users(c fiber.Ctx) error {
	q, err := searchQuery(c)
	if err != nil {
		return err
	}

	found, err := s.dir.SearchUsers(c.Context(), q)
	if err != nil {
		return err
	}

	users, err := s.local.SearchUsers(c.Context(), q, found)
	if err != nil {
		return err
	}

	return c.JSON(users)
}

// Groups searches the directory groups.
func (s *Service) Groups(c fiber.Ctx) error {
	q, err := searchQuery(c)
	if err != nil {
		return err
	}

	groups, err := s.dir.SearchGroups(c.Context(), q)
	if err != nil {
		return err
	}

	if groups == nil {
		groups = []dir.GroupRecord{}
	}

	return c.JSON(groups)
}

// Package loginhook serves the login event endpoint.
package loginhook

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
	"github.com/middlebury/dynamic-add-users/internal/login"
	"github.com/middlebury/dynamic-add-users/internal/web/handler"
)

// Path is the login event route.
const Path = "/login"

// Hook handles a login.
type Hook interface {
	OnLogin(ctx context.Context, attrs login.Attributes) (login.Result, error)
}

// Service is the login hook handler service.
type Service struct {
	hook Hook
}

var (
	// Handler is the login hook handler.
	Handler = Service{}
)

// Init registers the route on router.
func (s *Service) Init(router fiber.Router, hook Hook) {
	if router == nil || hook == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	s.hook = hook

	router.Post(Path, s.Login)
}

// Login syncs the groups of the user that logged in.
func (s *Service) Login(c fiber.Ctx) error {
	var attrs login.Attributes

	if err := c.Bind().Body(&attrs); err != nil {
		return apperr.Wrap(apperr.KindValidation, "loginhook.Login", err)
	}

	if attrs.Login == "" && attrs.IDToken == "" {
		return apperr.New(apperr.KindValidation, "loginhook.Login", "login or id_token is required")
	}

	res, err := s.hook.OnLogin(c.Context(), attrs)
	if err != nil {
		return err
	}

	if res.Changes == nil {
		res.Changes = []groupsync.Change{}
	}

	return c.JSON(res)
}

package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
)

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ErrorHandler maps errors to status codes. Error kinds of the sync engine
// carry their own status, anything else is a 500.
func ErrorHandler(c fiber.Ctx, err error) error {
	var (
		fe   *fiber.Error
		code = fiber.StatusInternalServerError
		kind = apperr.KindOf(err)
	)

	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case kind != apperr.KindUnknown:
		code = kind.HTTPStatus()
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	res := ErrorResponse{Error: err.Error()}
	if kind != apperr.KindUnknown {
		res.Kind = kind.String()
	}

	return c.Status(code).JSON(res)
}

// Package handler holds helpers shared by the admin API handlers.
package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
)

// ChangesResponse is the body of every endpoint returning a change log.
type ChangesResponse struct {
	Changes  []groupsync.Change `json:"changes"`
	Messages []string           `json:"messages"`
}

// NewChangesResponse renders changes with their messages.
func NewChangesResponse(changes []groupsync.Change) ChangesResponse {
	if changes == nil {
		changes = []groupsync.Change{}
	}

	return ChangesResponse{Changes: changes, Messages: groupsync.Messages(changes)}
}

// SiteID parses the :site route parameter.
func SiteID(c fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("site"), 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "handler.SiteID", err)
	}

	return id, nil
}

// ActingUser parses the acting administrator id header. A missing header is 0.
func ActingUser(c fiber.Ctx) (uint64, error) {
	raw := c.Get(ActingUserHeader)
	if raw == "" {
		return 0, nil
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindValidation, "handler.ActingUser", err)
	}

	return id, nil
}

// BindJSON decodes the body into req and validates it.
func BindJSON(c fiber.Ctx, v *validator.Validate, req any) error {
	if err := c.Bind().Body(req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "handler.BindJSON", err)
	}

	if err := v.Struct(req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "handler.BindJSON", err)
	}

	return nil
}

// Package groups serves the group sync endpoints of a site.
package groups

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/bulkrun"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
	"github.com/middlebury/dynamic-add-users/internal/role"
	"github.com/middlebury/dynamic-add-users/internal/web/handler"
)

const (
	// Path is the route of the groups of a site.
	Path = "/sites/:site/groups"

	// SyncAllPath is the route of the bulk sync.
	SyncAllPath = "/sync"
)

// Engine is the part of the sync engine the endpoints use.
type Engine interface {
	SyncedGroups(ctx context.Context, siteID uint64) ([]models.Registration, error)
	Registration(ctx context.Context, siteID uint64, groupID string) (*models.Registration, error)
	KeepInSync(ctx context.Context, siteID uint64, groupID string, r role.Role, label string) (bool, error)
	StopSync(ctx context.Context, siteID uint64, groupID string) error
	SyncOneGroup(ctx context.Context, siteID uint64, groupID string, r role.Role, label string) ([]groupsync.Change, error)
	SyncAllGroups(ctx context.Context) ([]groupsync.GroupResult, error)
	RemoveGroupMembers(ctx context.Context, siteID uint64, groupID string, actingUserID uint64) ([]groupsync.Change, error)
}

// RunLog keeps the summary of the last bulk sync.
type RunLog interface {
	Record(ctx context.Context, s bulkrun.Summary) error
	Last(ctx context.Context) (*bulkrun.Summary, error)
}

// TriggerAPI marks bulk syncs started through the API.
const TriggerAPI = "api"

// Service is the groups handler service.
type Service struct {
	engine    Engine
	runs      RunLog
	validator *validator.Validate
}

// KeepRequest registers a group.
type KeepRequest struct {
	GroupID string    `json:"group_id" validate:"required"`
	Label   string    `json:"label"`
	Role    role.Role `json:"role" validate:"required"`
	SyncNow bool      `json:"sync_now"`
}

// KeepResponse answers a KeepRequest.
type KeepResponse struct {
	Changed bool `json:"changed"`
	handler.ChangesResponse
}

// GroupRequest names a group. Role and label default to the registration.
type GroupRequest struct {
	GroupID string    `json:"group_id" validate:"required"`
	Role    role.Role `json:"role"`
	Label   string    `json:"label"`
}

// StopRequest stops syncing a group, optionally removing its members.
type StopRequest struct {
	GroupID       string `json:"group_id" validate:"required"`
	RemoveMembers bool   `json:"remove_members"`
}

var (
	// Handler is the groups handler.
	Handler = Service{}
)

// Init registers the routes on router.
func (s *Service) Init(router fiber.Router, engine Engine, runs RunLog) {
	if router == nil || engine == nil || runs == nil {
		log.Fatal().Msg(handler.ErrNilDepsFatalLogMsg)
		return
	}

	s.engine = engine
	s.runs = runs
	s.validator = validator.New()

	router.Get(Path, s.List)
	router.Post(Path, s.Keep)
	router.Post(Path+"/sync", s.Sync)
	router.Post(Path+"/stop", s.Stop)
	router.Post(Path+"/remove-members", s.RemoveMembers)
	router.Get(SyncAllPath, s.LastRun)
	router.Post(SyncAllPath, s.SyncAll)
}

// List returns the registrations of the site.
func (s *Service) List(c fiber.Ctx) error {
	siteID, err := handler.SiteID(c)
	if err != nil {
		return err
	}

	regs, err := s.engine.SyncedGroups(c.Context(), siteID)
	if err != nil {
		return err
	}

	if regs == nil {
		regs = []models.Registration{}
	}

	return c.JSON(regs)
}

// Keep registers a group and optionally syncs it right away.
func (s *Service) Keep(c fiber.Ctx) error {
	siteID, err := handler.SiteID(c)
	if err != nil {
		return err
	}

	var req KeepRequest
	if err = handler.BindJSON(c, s.validator, &req); err != nil {
		return err
	}

	changed, err := s.engine.KeepInSync(c.Context(), siteID, req.GroupID, req.Role, req.Label)
	if err != nil {
		return err
	}

	res := KeepResponse{Changed: changed, ChangesResponse: handler.NewChangesResponse(nil)}

	if req.SyncNow {
		changes, errSync := s.engine.SyncOneGroup(c.Context(), siteID, req.GroupID, req.Role, req.Label)
		if errSync != nil {
			return errSync
		}

		res.ChangesResponse = handler.NewChangesResponse(changes)
	}

	status := fiber.StatusOK
	if changed {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(res)
}

// Sync runs one group sync.
func (s *Service) Sync(c fiber.Ctx) error {
	siteID, err := handler.SiteID(c)
	if err != nil {
		return err
	}

	var req GroupRequest
	if err = handler.BindJSON(c, s.validator, &req); err != nil {
		return err
	}

	if req.Role == role.None {
		reg, errReg := s.engine.Registration(c.Context(), siteID, req.GroupID)
		if errReg != nil {
			return errReg
		}

		req.Role = reg.Role

		if req.Label == "" {
			req.Label = reg.GroupLabel
		}
	}

	changes, err := s.engine.SyncOneGroup(c.Context(), siteID, req.GroupID, req.Role, req.Label)
	if err != nil {
		return err
	}

	return c.JSON(handler.NewChangesResponse(changes))
}

// Stop stops syncing a group. With remove_members its synced users are
// removed from the site first.
func (s *Service) Stop(c fiber.Ctx) error {
	siteID, err := handler.SiteID(c)
	if err != nil {
		return err
	}

	var req StopRequest
	if err = handler.BindJSON(c, s.validator, &req); err != nil {
		return err
	}

	var changes []groupsync.Change

	if req.RemoveMembers {
		if changes, err = s.removeMembers(c, siteID, req.GroupID); err != nil {
			return err
		}
	}

	if err = s.engine.StopSync(c.Context(), siteID, req.GroupID); err != nil {
		return err
	}

	return c.JSON(handler.NewChangesResponse(changes))
}

// RemoveMembers removes the synced users of a group from the site.
func (s *Service) RemoveMembers(c fiber.Ctx) error {
	siteID, err := handler.SiteID(c)
	if err != nil {
		return err
	}

	var req GroupRequest
	if err = handler.BindJSON(c, s.validator, &req); err != nil {
		return err
	}

	changes, err := s.removeMembers(c, siteID, req.GroupID)
	if err != nil {
		return err
	}

	return c.JSON(handler.NewChangesResponse(changes))
}

func (s *Service) removeMembers(c fiber.Ctx, siteID uint64, groupID string) ([]groupsync.Change, error) {
	acting, err := handler.ActingUser(c)
	if err != nil {
		return nil, err
	}

	if acting == 0 {
		return nil, apperr.New(apperr.KindValidation, "groups.RemoveMembers",
			handler.ActingUserHeader+" is required to remove members")
	}

	return s.engine.RemoveGroupMembers(c.Context(), siteID, groupID, acting)
}

// SyncAll syncs every registration and records the summary.
func (s *Service) SyncAll(c fiber.Ctx) error {
	_, results, err := bulkrun.Run(c.Context(), s.engine, s.runs, TriggerAPI)
	if err != nil {
		return err
	}

	if results == nil {
		results = []groupsync.GroupResult{}
	}

	return c.JSON(results)
}

// LastRun returns the summary of the last bulk sync.
func (s *Service) LastRun(c fiber.Ctx) error {
	summary, err := s.runs.Last(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(summary)
}

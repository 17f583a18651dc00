// Package web serves the JSON admin API over the sync engine.
package web

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	fiberlogger "github.com/middlebury/dynamic-add-users/internal/logger/adapter/fiber"
	"github.com/middlebury/dynamic-add-users/internal/web/handler"
	dirhandler "github.com/middlebury/dynamic-add-users/internal/web/handler/directory"
	"github.com/middlebury/dynamic-add-users/internal/web/handler/groups"
	"github.com/middlebury/dynamic-add-users/internal/web/handler/loginhook"
	"github.com/middlebury/dynamic-add-users/internal/web/middleware/apitoken"
)

const (
	// CheckAlivePath answers load balancer health checks.
	CheckAlivePath = "/checkalive"
	// MetricsPath exposes prometheus metrics.
	MetricsPath = "/metrics"
)

// Deps are the collaborators served by the API.
type Deps struct {
	Engine     groups.Engine
	Directory  directory.Directory
	LocalUsers dirhandler.LocalUsers
	Login      loginhook.Hook
	Runs       groups.RunLog
}

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address and blocks until it stops.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		err := s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	log.Info().Str("addr", addr).Msg("admin api listening")

	<-doneFiber // wait for fiber to stop

	return nil
}

// Addr returns the listen address of the configured port.
func (s *Service) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.Webserver.Port)
}

// Shutdown lets checkalive fail for ShutDownTime seconds, then stops the server.
func (s *Service) Shutdown() {
	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		log.Error().Err(err).Msg("")
	}

	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration.
func New(cfg *config.Config, deps Deps) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if deps.Engine == nil || deps.Directory == nil || deps.LocalUsers == nil || deps.Login == nil || deps.Runs == nil {
		panic("web dependencies cannot be nil")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Immutable:      true,
			ErrorHandler:   ErrorHandler,
		},
	)

	service := &Service{
		cfg:          cfg,
		App:          app,
		fastShutDown: cfg.DevMode || cfg.Webserver.ShutDownTime == 0,
	}

	service.alive.Store(true)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New(recover.Config{EnableStackTrace: cfg.DevMode}))
	}

	accessLog := fiberlogger.Config{Config: cfg.Log}
	if cfg.Log.DisableCheckAlive {
		accessLog.CheckAliveURI = CheckAlivePath
	}

	app.Use(fiberlogger.New(accessLog))

	app.Get(CheckAlivePath, service.checkAlive)
	app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group(handler.APIPath, apitoken.New(cfg.Webserver.APIToken))

	groups.Handler.Init(api, deps.Engine, deps.Runs)
	dirhandler.Handler.Init(api, deps.Directory, deps.LocalUsers)
	loginhook.Handler.Init(api, deps.Login)

	return service
}

func (s *Service) checkAlive(c fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("OK")
}

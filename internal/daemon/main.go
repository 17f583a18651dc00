// Package daemon wires storage, the directory and the sync engine together
// and runs the bulk sync scheduler next to the admin API.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/db"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/bulkrun"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/siterole"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/syncstate"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/directory/ldapdir"
	"github.com/middlebury/dynamic-add-users/internal/directory/static"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
	"github.com/middlebury/dynamic-add-users/internal/login"
	"github.com/middlebury/dynamic-add-users/internal/provision"
	"github.com/middlebury/dynamic-add-users/internal/role"
	"github.com/middlebury/dynamic-add-users/internal/web"
	"github.com/middlebury/dynamic-add-users/internal/worker"
)

// ErrConfigNil is returned by New without a config.
var ErrConfigNil = errors.New("config is nil")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg  *config.Config
	db   *gorm.DB
	pool *worker.Pool

	Directory directory.Directory
	Users     *provision.Service
	Engine    *groupsync.Engine
	Login     *login.Hook
	Runs      *bulkrun.Log
}

// Directories returns the registry of every directory adapter.
func Directories() *directory.Registry {
	r := directory.NewRegistry()
	r.Register(config.DirectoryLDAP, ldapdir.Factory)
	r.Register(config.DirectoryStatic, static.Factory)

	return r
}

// New opens the database and the directory and builds the engine.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	conn, err := db.Open(cfg, log.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	d := &Daemon{cfg: cfg, db: conn}

	if err = d.build(ctx); err != nil {
		d.Close()

		return nil, err
	}

	return d, nil
}

func (d *Daemon) build(ctx context.Context) error {
	var err error

	if d.Directory, err = Directories().Open(d.cfg.Directory); err != nil {
		return errors.Wrap(err, "failed to open directory")
	}

	hierarchy, err := role.FromStrings(d.cfg.Sync.Roles)
	if err != nil {
		return errors.Wrap(err, "invalid sync roles")
	}

	if d.Users, err = provision.New(d.db, d.Directory); err != nil {
		return errors.Wrap(err, "failed to create provisioner")
	}

	roles, err := siterole.New(d.db, hierarchy)
	if err != nil {
		return errors.Wrap(err, "failed to create role store")
	}

	store, err := syncstate.New(d.db)
	if err != nil {
		return errors.Wrap(err, "failed to create sync state store")
	}

	if d.Runs, err = bulkrun.New(d.db); err != nil {
		return errors.Wrap(err, "failed to create run log")
	}

	opts := groupsync.Options{
		Hierarchy: hierarchy,
		LeaseTTL:  time.Duration(d.cfg.Sync.LeaseTTLSeconds) * time.Second,
	}

	if d.cfg.Sync.Workers > 1 {
		if d.pool, err = worker.New("sync", d.cfg.Sync.Workers); err != nil {
			return errors.Wrap(err, "failed to create worker pool")
		}

		opts.Pool = d.pool
	}

	if d.Engine, err = groupsync.New(d.Directory, d.Users, roles, store, opts); err != nil {
		return errors.Wrap(err, "failed to create sync engine")
	}

	d.Engine.OnUserSynced(logUserSynced)

	mapper, err := login.NewMapper(ctx, d.cfg.Login)
	if err != nil {
		return errors.Wrap(err, "failed to create login mapper")
	}

	if d.Login, err = login.NewHook(mapper, d.Directory, d.Users, d.Engine); err != nil {
		return errors.Wrap(err, "failed to create login hook")
	}

	return nil
}

func logUserSynced(_ context.Context, ev groupsync.UserSyncedEvent) {
	if len(ev.Changes) == 0 {
		return
	}

	log.Info().
		Str("login", ev.Login).
		Strs("groups", ev.Groups).
		Strs("changes", groupsync.Messages(ev.Changes)).
		Msg("user synced")
}

// WebService builds the admin API.
func (d *Daemon) WebService() *web.Service {
	return web.New(d.cfg, web.Deps{
		Engine:     d.Engine,
		Directory:  d.Directory,
		LocalUsers: d.Users,
		Login:      d.Login,
		Runs:       d.Runs,
	})
}

// SyncUser syncs the groups of the user with the directory login externalID,
// independent of the configured login mapper.
func (d *Daemon) SyncUser(ctx context.Context, externalID string) (login.Result, error) {
	hook, err := login.NewHook(login.LoginMapper{}, d.Directory, d.Users, d.Engine)
	if err != nil {
		return login.Result{}, err
	}

	return hook.OnLogin(ctx, login.Attributes{Login: externalID})
}

// Run registers the configured groups, then runs the scheduler and, unless
// disabled, the admin API until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Seed(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		d.schedule(ctx)
	}()

	defer wg.Wait()

	if d.cfg.Webserver.Disabled {
		log.Info().Msg("admin api disabled")
		<-ctx.Done()

		return nil
	}

	svc := d.WebService()
	stopped := make(chan error, 1)

	go func() {
		stopped <- svc.Start(svc.Addr())
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
		svc.Shutdown()

		return <-stopped
	case err := <-stopped:
		return err
	}
}

// Close releases the worker pool and the database connection.
func (d *Daemon) Close() {
	if d.pool != nil {
		d.pool.Release()
	}

	if d.db == nil {
		return
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		log.Error().Err(err).Msg("failed to get sql.DB")

		return
	}

	if err = sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

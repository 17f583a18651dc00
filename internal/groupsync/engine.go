// Package groupsync keeps site role assignments in line with directory group
// membership.
//
// The engine reconciles three sources: the directory's current membership,
// the site's current role assignments and the snapshot of users it placed into
// the site at the last sync of a group. It only removes a role it granted
// itself, and it never downgrades a stronger role.
package groupsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
	"github.com/middlebury/dynamic-add-users/internal/directory"
	"github.com/middlebury/dynamic-add-users/internal/role"
	"github.com/middlebury/dynamic-add-users/internal/uniuri"
	"github.com/middlebury/dynamic-add-users/internal/worker"
)

// DefaultLeaseTTL bounds how long a crashed sync blocks its (site, group).
const DefaultLeaseTTL = 10 * time.Minute

// ErrDependencyNil is returned by New when a collaborator is missing.
var ErrDependencyNil = errors.New("groupsync: directory, provisioner, role assigner and store are required")

// Options tune an Engine. Zero values select defaults.
type Options struct {
	Hierarchy *role.Hierarchy
	// Pool runs SyncAllGroups. Nil runs registrations one after another.
	Pool     *worker.Pool
	LeaseTTL time.Duration
	Now      func() time.Time
}

// Engine is the group sync engine. It is safe for concurrent use.
type Engine struct {
	dir       directory.Directory
	users     Provisioner
	roles     RoleAssigner
	store     Store
	hierarchy *role.Hierarchy
	pool      *worker.Pool
	leaseTTL  time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	observers []func(context.Context, UserSyncedEvent)
}

// New returns an Engine.
func New(dir directory.Directory, users Provisioner, roles RoleAssigner, store Store, opts Options) (*Engine, error) {
	if dir == nil || users == nil || roles == nil || store == nil {
		return nil, ErrDependencyNil
	}

	e := &Engine{
		dir:       dir,
		users:     users,
		roles:     roles,
		store:     store,
		hierarchy: opts.Hierarchy,
		pool:      opts.Pool,
		leaseTTL:  opts.LeaseTTL,
		now:       opts.Now,
	}

	if e.hierarchy == nil {
		e.hierarchy = role.Default()
	}

	if e.leaseTTL <= 0 {
		e.leaseTTL = DefaultLeaseTTL
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e, nil
}

// Hierarchy returns the role order used by the engine.
func (e *Engine) Hierarchy() *role.Hierarchy {
	return e.hierarchy
}

// OnUserSynced registers fn to be called after every SyncUserAcrossGroups.
// Observers run synchronously in registration order.
func (e *Engine) OnUserSynced(fn func(context.Context, UserSyncedEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(ctx context.Context, ev UserSyncedEvent) {
	e.mu.RLock()
	observers := make([]func(context.Context, UserSyncedEvent), len(e.observers))
	copy(observers, e.observers)
	e.mu.RUnlock()

	for _, fn := range observers {
		fn(ctx, ev)
	}
}

func (e *Engine) checkRole(op string, r role.Role) error {
	if r == role.None || !e.hierarchy.Known(r) {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("unknown role %q", string(r)))
	}

	return nil
}

// KeepInSync registers groupID to be kept in sync with siteID at role r.
// It reports false, without writing, when the group is already registered
// with r. A new or changed registration starts with no last sync time.
func (e *Engine) KeepInSync(ctx context.Context, siteID uint64, groupID string, r role.Role, label string) (bool, error) {
	const op = "groupsync.KeepInSync"

	if groupID == "" {
		return false, apperr.New(apperr.KindValidation, op, "group id is empty")
	}

	if err := e.checkRole(op, r); err != nil {
		return false, err
	}

	existing, err := e.store.GetRegistration(ctx, siteID, groupID)

	switch {
	case err == nil && existing.Role == r:
		return false, nil
	case err != nil && !apperr.IsNotFound(err):
		return false, err
	}

	err = e.store.ReplaceRegistration(ctx, models.Registration{
		SiteID:     siteID,
		GroupID:    groupID,
		GroupLabel: label,
		Role:       r,
	})
	if err != nil {
		return false, err
	}

	log.Info().Uint64("site_id", siteID).Str("group_id", groupID).Str("role", string(r)).
		Msg("group registered for sync")

	return true, nil
}

// StopSync drops the registration and its snapshot. Roles are left in place.
func (e *Engine) StopSync(ctx context.Context, siteID uint64, groupID string) error {
	if err := e.store.DeleteRegistration(ctx, siteID, groupID); err != nil {
		return err
	}

	log.Info().Uint64("site_id", siteID).Str("group_id", groupID).Msg("group sync stopped")

	return nil
}

// SyncedGroups lists the registrations of siteID.
func (e *Engine) SyncedGroups(ctx context.Context, siteID uint64) ([]models.Registration, error) {
	return e.store.ListSiteRegistrations(ctx, siteID)
}

// Registration returns the registration of (siteID, groupID).
func (e *Engine) Registration(ctx context.Context, siteID uint64, groupID string) (*models.Registration, error) {
	return e.store.GetRegistration(ctx, siteID, groupID)
}

// withLease runs fn while holding the (site, group) lease.
func (e *Engine) withLease(ctx context.Context, siteID uint64, groupID string, fn func() error) error {
	holder := uniuri.NewLen(uniuri.TokenLen)

	if err := e.store.AcquireLease(ctx, siteID, groupID, holder, e.leaseTTL); err != nil {
		return err
	}

	defer func() {
		// released on a fresh context so a cancelled run does not keep the lease
		if err := e.store.ReleaseLease(context.WithoutCancel(ctx), siteID, groupID, holder); err != nil {
			log.Error().Err(err).Uint64("site_id", siteID).Str("group_id", groupID).Msg("failed to release sync lease")
		}
	}()

	return fn()
}

// SyncOneGroup reconciles siteID with the current members of groupID at role r.
//
// A directory failure on the group aborts the sync with nothing recorded.
// Members that cannot be provisioned are logged and left out of the snapshot.
// Failed grants or revokes become Failed entries. An empty result means
// nothing needed to change.
func (e *Engine) SyncOneGroup(ctx context.Context, siteID uint64, groupID string, r role.Role, label string) ([]Change, error) {
	const op = "groupsync.SyncOneGroup"

	if err := e.checkRole(op, r); err != nil {
		return nil, err
	}

	var changes []Change

	err := e.withLease(ctx, siteID, groupID, func() error {
		var err error

		changes, err = e.syncGroup(ctx, siteID, groupID, r)

		return err
	})

	groupSyncs.WithLabelValues(result(err)).Inc()
	countChanges(changes)

	logger := log.With().Uint64("site_id", siteID).Str("group_id", groupID).Str("group_label", label).Logger()

	if err != nil {
		logger.Warn().Err(err).Msg("group sync failed")

		return changes, err
	}

	logger.Info().Int("changes", len(changes)).Msg("group synced")

	return changes, nil
}

func (e *Engine) syncGroup(ctx context.Context, siteID uint64, groupID string, r role.Role) ([]Change, error) {
	members, err := e.dir.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	previous, err := e.store.SyncedUsers(ctx, siteID, groupID)
	if err != nil {
		return nil, err
	}

	var changes []Change

	current := make([]uint64, 0, len(members))
	resolved := make(map[uint64]struct{}, len(members))

	for _, rec := range members {
		user, errUser := e.users.GetOrCreate(ctx, rec)
		if errUser != nil {
			log.Warn().Err(errUser).Str("login", rec.Login).Str("group_id", groupID).
				Msg("skipping group member that could not be provisioned")

			continue
		}

		if _, dup := resolved[user.ID]; dup {
			continue
		}

		resolved[user.ID] = struct{}{}
		current = append(current, user.ID)

		if c, ok := e.grant(ctx, siteID, groupID, user, r); ok {
			changes = append(changes, c)
		}
	}

	for _, userID := range previous {
		if _, still := resolved[userID]; still {
			continue
		}

		if c, ok := e.revokeIfGranted(ctx, siteID, groupID, userID, r); ok {
			changes = append(changes, c)
		}
	}

	if err = e.store.ReplaceSnapshot(ctx, siteID, groupID, current, e.now()); err != nil {
		return changes, err
	}

	return changes, nil
}

// grant gives user role r in siteID unless an equal or stronger role is held.
// The bool reports whether a change entry was produced.
func (e *Engine) grant(ctx context.Context, siteID uint64, groupID string, user *models.User, r role.Role) (Change, bool) {
	existing, err := e.roles.CurrentRole(ctx, user.ID, siteID)
	if err != nil {
		return failed(siteID, groupID, user, r, err), true
	}

	if existing != role.None {
		if !e.hierarchy.Known(existing) {
			log.Warn().Str("login", user.Login).Uint64("site_id", siteID).Str("role", string(existing)).
				Msg("leaving unknown role untouched")

			return Change{}, false
		}

		if e.hierarchy.IsStrongerOrEqual(existing, r) {
			return Change{}, false
		}
	}

	err = e.roles.GrantRole(ctx, user.ID, siteID, r)
	if errors.Is(err, apperr.ErrAlreadyStrongerRole) {
		return Change{}, false
	}

	if err != nil {
		return failed(siteID, groupID, user, r, err), true
	}

	kind := Added
	if existing != role.None {
		kind = Upgraded
	}

	return newChange(kind, siteID, groupID, user, r), true
}

// revokeIfGranted removes userID from siteID if it still holds exactly r.
func (e *Engine) revokeIfGranted(ctx context.Context, siteID uint64, groupID string, userID uint64, r role.Role) (Change, bool) {
	user := e.describe(ctx, userID)

	current, err := e.roles.CurrentRole(ctx, userID, siteID)
	if err != nil {
		return failed(siteID, groupID, user, r, err), true
	}

	if current == role.None {
		return Change{}, false
	}

	if current != r {
		log.Debug().Uint64("user_id", userID).Uint64("site_id", siteID).Str("role", string(current)).
			Msg("role changed since last sync, not removing")

		return Change{}, false
	}

	if err = e.roles.RevokeRole(ctx, userID, siteID); err != nil {
		return failed(siteID, groupID, user, r, err), true
	}

	return newChange(Removed, siteID, groupID, user, r), true
}

// describe loads a user for change entries, falling back to the bare id.
func (e *Engine) describe(ctx context.Context, userID uint64) *models.User {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return &models.User{ID: userID}
	}

	return user
}

func failed(siteID uint64, groupID string, user *models.User, r role.Role, err error) Change {
	c := newChange(Failed, siteID, groupID, user, r)
	c.Error = err.Error()

	log.Error().Err(err).Uint64("site_id", siteID).Str("group_id", groupID).Str("login", c.Login).
		Msg("failed to update site role")

	return c
}

// SyncAllGroups syncs every registration. A failing registration is logged
// and reported in its result without stopping the others. Results follow the
// registration order.
func (e *Engine) SyncAllGroups(ctx context.Context) ([]GroupResult, error) {
	regs, err := e.store.ListRegistrations(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]GroupResult, len(regs))

	var wg sync.WaitGroup

	for i, reg := range regs {
		run := func(ctx context.Context) {
			results[i] = e.syncRegistration(ctx, reg)
		}

		if e.pool == nil {
			run(ctx)

			continue
		}

		wg.Add(1)

		// the pool gets an uncancellable context so every queued task reports back
		errSubmit := e.pool.Submit(context.WithoutCancel(ctx), func(context.Context) {
			defer wg.Done()

			if ctx.Err() != nil {
				results[i] = groupResult(reg, nil, ctx.Err())

				return
			}

			run(ctx)
		})
		if errSubmit != nil {
			wg.Done()

			results[i] = groupResult(reg, nil, errSubmit)
		}
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) syncRegistration(ctx context.Context, reg models.Registration) GroupResult {
	changes, err := e.SyncOneGroup(ctx, reg.SiteID, reg.GroupID, reg.Role, reg.GroupLabel)

	return groupResult(reg, changes, err)
}

func groupResult(reg models.Registration, changes []Change, err error) GroupResult {
	res := GroupResult{SiteID: reg.SiteID, GroupID: reg.GroupID, Role: reg.Role, Changes: changes, Err: err}
	if err != nil {
		res.Error = err.Error()
	}

	return res
}

// SyncUserAcrossGroups applies the fresh directory group list of userID to
// every site with a registration for one of those groups, and removes roles
// granted through groups the user has left. A left group that no longer
// resolves in the directory is skipped so an outage never removes members,
// and so is a left group whose role another current group still grants.
func (e *Engine) SyncUserAcrossGroups(ctx context.Context, userID uint64, groupIDs []string) ([]Change, error) {
	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		userSyncs.WithLabelValues(result(err)).Inc()

		return nil, err
	}

	changes, err := e.syncUser(ctx, user, groupIDs)

	userSyncs.WithLabelValues(result(err)).Inc()
	countChanges(changes)

	if err != nil {
		return changes, err
	}

	e.notify(ctx, UserSyncedEvent{UserID: user.ID, Login: user.Login, Groups: groupIDs, Changes: changes})

	return changes, nil
}

func (e *Engine) syncUser(ctx context.Context, user *models.User, groupIDs []string) ([]Change, error) {
	current := make(map[string]struct{}, len(groupIDs))
	for _, g := range groupIDs {
		current[g] = struct{}{}
	}

	regs, err := e.store.RegistrationsForGroups(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	var changes []Change

	// strongest role the current groups grant per site
	granted := make(map[uint64]role.Role, len(regs))

	for _, reg := range regs {
		if !e.hierarchy.Known(reg.Role) {
			log.Warn().Uint64("site_id", reg.SiteID).Str("group_id", reg.GroupID).Str("role", string(reg.Role)).
				Msg("registration has an unknown role")

			continue
		}

		if prev, ok := granted[reg.SiteID]; !ok || e.hierarchy.IsStronger(reg.Role, prev) {
			granted[reg.SiteID] = reg.Role
		}

		c, ok := e.grant(ctx, reg.SiteID, reg.GroupID, user, reg.Role)
		if !ok {
			continue
		}

		changes = append(changes, c)

		if c.Kind == Failed {
			continue
		}

		if err = e.store.MarkSynced(ctx, reg.SiteID, reg.GroupID, user.ID); err != nil {
			log.Error().Err(err).Uint64("site_id", reg.SiteID).Str("group_id", reg.GroupID).Msg("failed to record synced membership")
		}
	}

	synced, err := e.store.RegistrationsSyncedForUser(ctx, user.ID)
	if err != nil {
		return changes, err
	}

	for _, reg := range synced {
		if _, still := current[reg.GroupID]; still {
			continue
		}

		if r, ok := granted[reg.SiteID]; ok && e.hierarchy.IsStrongerOrEqual(r, reg.Role) {
			log.Debug().Str("login", user.Login).Uint64("site_id", reg.SiteID).Str("group_id", reg.GroupID).
				Str("role", string(r)).Msg("left group, role still granted by another group")
			e.unmark(ctx, user.ID, reg)

			continue
		}

		if c, ok := e.revokeLeft(ctx, user, reg); ok {
			changes = append(changes, c)
		}
	}

	return changes, nil
}

// revokeLeft handles a registration whose group the user is no longer in.
func (e *Engine) revokeLeft(ctx context.Context, user *models.User, reg models.Registration) (Change, bool) {
	logger := log.With().Str("login", user.Login).Uint64("site_id", reg.SiteID).Str("group_id", reg.GroupID).Logger()

	existing, err := e.roles.CurrentRole(ctx, user.ID, reg.SiteID)
	if err != nil {
		return failed(reg.SiteID, reg.GroupID, user, reg.Role, err), true
	}

	if existing == role.None {
		e.unmark(ctx, user.ID, reg)

		return Change{}, false
	}

	if existing != reg.Role {
		logger.Debug().Str("role", string(existing)).Msg("role changed since it was granted, not removing")

		return Change{}, false
	}

	if _, err = e.dir.GetGroupMembers(ctx, reg.GroupID); err != nil {
		logger.Info().Err(err).Msg("group did not resolve, keeping role")

		return Change{}, false
	}

	if err = e.roles.RevokeRole(ctx, user.ID, reg.SiteID); err != nil {
		return failed(reg.SiteID, reg.GroupID, user, reg.Role, err), true
	}

	e.unmark(ctx, user.ID, reg)

	return newChange(Removed, reg.SiteID, reg.GroupID, user, reg.Role), true
}

func (e *Engine) unmark(ctx context.Context, userID uint64, reg models.Registration) {
	if err := e.store.UnmarkSynced(ctx, reg.SiteID, reg.GroupID, userID); err != nil {
		log.Error().Err(err).Uint64("site_id", reg.SiteID).Str("group_id", reg.GroupID).Msg("failed to clear synced membership")
	}
}

// RemoveGroupMembers removes every user synced into siteID through groupID,
// whatever their current role. Without a snapshot the live directory members
// that already have a local account are used. actingUserID is never removed.
func (e *Engine) RemoveGroupMembers(ctx context.Context, siteID uint64, groupID string, actingUserID uint64) ([]Change, error) {
	var changes []Change

	err := e.withLease(ctx, siteID, groupID, func() error {
		userIDs, err := e.removalCandidates(ctx, siteID, groupID)
		if err != nil {
			return err
		}

		for _, userID := range userIDs {
			if userID == actingUserID {
				log.Info().Uint64("user_id", userID).Uint64("site_id", siteID).Msg("not removing the acting administrator")

				continue
			}

			if c, ok := e.remove(ctx, siteID, groupID, userID); ok {
				changes = append(changes, c)
			}
		}

		return nil
	})

	countChanges(changes)

	return changes, err
}

func (e *Engine) removalCandidates(ctx context.Context, siteID uint64, groupID string) ([]uint64, error) {
	ids, err := e.store.SyncedUsers(ctx, siteID, groupID)
	if err != nil || len(ids) > 0 {
		return ids, err
	}

	members, err := e.dir.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	for _, rec := range members {
		user, errUser := e.users.FindByLogin(ctx, rec.Login)
		if errUser != nil {
			if !apperr.IsNotFound(errUser) {
				log.Warn().Err(errUser).Str("login", rec.Login).Msg("skipping group member")
			}

			continue
		}

		ids = append(ids, user.ID)
	}

	return ids, nil
}

func (e *Engine) remove(ctx context.Context, siteID uint64, groupID string, userID uint64) (Change, bool) {
	user := e.describe(ctx, userID)

	current, err := e.roles.CurrentRole(ctx, userID, siteID)
	if err != nil {
		return failed(siteID, groupID, user, role.None, err), true
	}

	if current == role.None {
		return Change{}, false
	}

	if err = e.roles.RevokeRole(ctx, userID, siteID); err != nil {
		return failed(siteID, groupID, user, current, err), true
	}

	return newChange(Removed, siteID, groupID, user, current), true
}

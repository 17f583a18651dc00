package daemon

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/role"
)

// Seed registers the groups listed in the config. A listed group that is
// already registered with the same role is left alone.
func (d *Daemon) Seed(ctx context.Context) error {
	for _, r := range d.cfg.Sync.Registrations {
		changed, err := d.Engine.KeepInSync(ctx, r.SiteID, r.GroupID, role.Role(r.Role), r.Label)
		if err != nil {
			return errors.Wrapf(err, "failed to register group %s for site %d", r.GroupID, r.SiteID)
		}

		if changed {
			log.Info().
				Uint64("site", r.SiteID).
				Str("group", r.GroupID).
				Str("role", r.Role).
				Msg("registered group from config")
		}
	}

	return nil
}

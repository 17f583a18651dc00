package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/middlebury/dynamic-add-users/internal/db/controller/bulkrun"
)

// Bulk sync triggers recorded in the run log.
const (
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

// BulkSync syncs every registration and records the summary.
func (d *Daemon) BulkSync(ctx context.Context, trigger string) (bulkrun.Summary, error) {
	summary, _, err := bulkrun.Run(ctx, d.Engine, d.Runs, trigger)

	return summary, err
}

// schedule runs BulkSync every Sync.IntervalSeconds until ctx is done.
func (d *Daemon) schedule(ctx context.Context) {
	if d.cfg.Sync.RunOnStart {
		d.scheduledRun(ctx)
	}

	if d.cfg.Sync.IntervalSeconds <= 0 {
		log.Info().Msg("bulk sync scheduler disabled")

		return
	}

	interval := time.Duration(d.cfg.Sync.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)

	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("bulk sync scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scheduledRun(ctx)
		}
	}
}

func (d *Daemon) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if _, err := d.BulkSync(ctx, TriggerScheduler); err != nil {
		log.Error().Err(err).Msg("bulk sync failed")
	}
}

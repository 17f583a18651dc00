// Package bulkrun keeps the summary of the last bulk sync in the settings table.
package bulkrun

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/middlebury/dynamic-add-users/internal/apperr"
	"github.com/middlebury/dynamic-add-users/internal/db/controller/setting"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
)

const (
	// SettingKeyLastRun is the key used to store the last bulk sync summary.
	SettingKeyLastRun = "bulk_sync_last_run"
)

type (
	// Summary counts the outcome of one bulk sync.
	Summary struct {
		// Trigger names who started the run: scheduler, api or cli.
		Trigger    string    `json:"trigger"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
		Groups     int       `json:"groups"`
		// FailedGroups counts registrations whose sync returned an error.
		FailedGroups int `json:"failed_groups"`
		Added        int `json:"added"`
		Upgraded     int `json:"upgraded"`
		Removed      int `json:"removed"`
		// FailedUsers counts per user steps that were skipped.
		FailedUsers int `json:"failed_users"`
	}

	// Log stores summaries.
	Log struct {
		db *gorm.DB
	}

	// Syncer runs the sync of every registration.
	Syncer interface {
		SyncAllGroups(ctx context.Context) ([]groupsync.GroupResult, error)
	}

	// Recorder stores the summary of a run.
	Recorder interface {
		Record(ctx context.Context, s Summary) error
	}
)

// Run syncs every registration, logs the outcome and records the summary
// under trigger. A failure to record is logged, not returned.
func Run(ctx context.Context, syncer Syncer, rec Recorder, trigger string) (Summary, []groupsync.GroupResult, error) {
	startedAt := time.Now()

	results, err := syncer.SyncAllGroups(ctx)
	if err != nil {
		return Summary{}, nil, err
	}

	for _, r := range results {
		if r.Err != nil {
			log.Warn().Err(r.Err).Uint64("site", r.SiteID).Str("group", r.GroupID).Msg("group sync failed")
		}
	}

	summary := Summarize(trigger, startedAt, time.Now(), results)

	log.Info().
		Str("trigger", trigger).
		Int("groups", summary.Groups).
		Int("failed_groups", summary.FailedGroups).
		Int("added", summary.Added).
		Int("upgraded", summary.Upgraded).
		Int("removed", summary.Removed).
		Int("failed_users", summary.FailedUsers).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("bulk sync finished")

	// a canceled run still records what it got through
	if err = rec.Record(context.WithoutCancel(ctx), summary); err != nil {
		log.Error().Err(err).Msg("failed to record bulk sync summary")
	}

	return summary, results, nil
}

// Summarize counts results of a bulk sync.
func Summarize(trigger string, startedAt, finishedAt time.Time, results []groupsync.GroupResult) Summary {
	s := Summary{
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Groups:     len(results),
	}

	for _, r := range results {
		if r.Err != nil || r.Error != "" {
			s.FailedGroups++
		}

		for _, c := range r.Changes {
			switch c.Kind {
			case groupsync.Added:
				s.Added++
			case groupsync.Upgraded:
				s.Upgraded++
			case groupsync.Removed:
				s.Removed++
			case groupsync.Failed:
				s.FailedUsers++
			}
		}
	}

	return s
}

// New returns a Log on db.
func New(db *gorm.DB) (*Log, error) {
	if db == nil {
		return nil, setting.ErrDBNil
	}

	return &Log{db: db}, nil
}

// Record stores s as the last run.
func (l *Log) Record(ctx context.Context, s Summary) error {
	return setting.Save(ctx, l.db, SettingKeyLastRun, s)
}

// Last returns the last recorded run.
func (l *Log) Last(ctx context.Context) (*Summary, error) {
	var s Summary

	err := setting.Load(ctx, l.db, SettingKeyLastRun, &s)
	if errors.Is(err, setting.ErrSettingNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "bulkrun.Last", "no bulk sync has run yet")
	}

	if err != nil {
		return nil, err
	}

	return &s, nil
}

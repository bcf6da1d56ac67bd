package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PendingPurger is the subset of the link store needed by the purge job.
// Defined here to avoid a dependency on the link package.
type PendingPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PendingPurgeJob deletes expired pending link states that were started but
// never completed by an OAuth callback.
type PendingPurgeJob struct {
	Store        PendingPurger
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/30 * * * *"
}

// Compile-time interface check.
var _ Job = (*PendingPurgeJob)(nil)

// Name implements Job.
func (j *PendingPurgeJob) Name() string {
	return "pending_purge"
}

// Schedule implements Job.
func (j *PendingPurgeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/30 * * * *"
}

// Run purges pending states past their expiry.
func (j *PendingPurgeJob) Run(ctx context.Context) error {
	purged, err := j.Store.PurgeExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("cron: purging expired pending links: %w", err)
	}
	if purged > 0 {
		j.Logger.Info("cron: purged expired pending links", "count", purged)
	}
	return nil
}

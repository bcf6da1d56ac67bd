package verify

import (
	"context"

	"github.com/bouncerbot/bouncer/internal/cron"
)

// Job adapts the verifier to the cron scheduler.
type Job struct {
	Verifier     *Verifier
	ScheduleExpr string // empty = default "0 4 * * *"
}

// Compile-time interface check.
var _ cron.Job = (*Job)(nil)

// Name implements cron.Job.
func (j *Job) Name() string {
	return "verify_links"
}

// Schedule implements cron.Job.
func (j *Job) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 4 * * *"
}

// Run executes one verification cycle.
func (j *Job) Run(ctx context.Context) error {
	_, err := j.Verifier.RunCycle(ctx)
	return err
}

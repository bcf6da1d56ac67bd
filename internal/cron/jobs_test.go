package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testPurger implements PendingPurger for job tests.
type testPurger struct {
	calls     atomic.Int32
	purgeFunc func(now time.Time) (int64, error)
}

func (p *testPurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	p.calls.Add(1)
	if p.purgeFunc != nil {
		return p.purgeFunc(now)
	}
	return 0, nil
}

func TestPendingPurgeJob_Name(t *testing.T) {
	t.Parallel()
	j := &PendingPurgeJob{Logger: slog.Default()}
	if j.Name() != "pending_purge" {
		t.Errorf("name = %q, want %q", j.Name(), "pending_purge")
	}
}

func TestPendingPurgeJob_Schedule(t *testing.T) {
	t.Parallel()
	j := &PendingPurgeJob{Logger: slog.Default()}
	if j.Schedule() != "*/30 * * * *" {
		t.Errorf("schedule = %q, want %q", j.Schedule(), "*/30 * * * *")
	}

	j.ScheduleExpr = "0 * * * *"
	if j.Schedule() != "0 * * * *" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestPendingPurgeJob_Run(t *testing.T) {
	t.Parallel()

	store := &testPurger{
		purgeFunc: func(now time.Time) (int64, error) {
			if time.Since(now) > time.Minute {
				t.Errorf("purge cutoff %v is not recent", now)
			}
			return 3, nil
		},
	}

	j := &PendingPurgeJob{Store: store, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls.Load() != 1 {
		t.Errorf("purge calls = %d, want 1", store.calls.Load())
	}
}

func TestPendingPurgeJob_RunError(t *testing.T) {
	t.Parallel()

	store := &testPurger{
		purgeFunc: func(time.Time) (int64, error) {
			return 0, errors.New("db locked")
		},
	}

	j := &PendingPurgeJob{Store: store, Logger: slog.Default()}
	if err := j.Run(context.Background()); err == nil {
		t.Fatal("expected error from failing store")
	}
}

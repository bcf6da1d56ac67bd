// Package verify implements the role reconciliation cycle: it audits every
// linked user against their guild's qualifying Discord roles and revokes
// group access when the intersection is empty. Cycles run on a cron schedule,
// on member-event nudges, and on manual triggers, all through one serialized
// execution path.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bouncer/verify")

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bouncer_verify_cycles_total",
		Help: "Verification cycles run, by outcome.",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bouncer_verify_cycle_duration_seconds",
		Help:    "Wall time of a full verification cycle.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	usersChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bouncer_verify_users_checked_total",
		Help: "Linked users audited across all cycles.",
	})

	usersRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bouncer_verify_users_removed_total",
		Help: "Links revoked because no qualifying role remained.",
	})

	usersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bouncer_verify_users_failed_total",
		Help: "Users skipped in a cycle because a step failed.",
	})
)

// RoleFetcher is the part of the Discord API surface the verifier needs.
// The discord module implements it; tests substitute a fake.
type RoleFetcher interface {
	MemberRoles(ctx context.Context, guildID, userID int64) ([]int64, error)
}

// Stats summarizes one verification cycle. Returned to manual-trigger
// callers as JSON.
type Stats struct {
	Checked int `json:"checked"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Verifier audits linked users against allowed guild roles. Cycles are
// serialized: concurrent RunCycle calls queue behind a mutex.
type Verifier struct {
	store  link.Store
	roles  RoleFetcher
	queue  actions.Enqueuer
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Verifier. delay is the cooperative sleep between per-user
// Discord calls; zero disables it.
func New(store link.Store, roles RoleFetcher, queue actions.Enqueuer, logger *slog.Logger, delay time.Duration) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		store:  store,
		roles:  roles,
		queue:  queue,
		logger: logger,
		delay:  delay,
		now:    time.Now,
	}
}

// RunCycle audits every link in every configured guild inside one store
// transaction. Per-user failures never abort the cycle; the transaction
// commits when the scan completes. Only a failure to start the transaction
// or a hard storage error rolls it back.
func (v *Verifier) RunCycle(ctx context.Context) (Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ctx, span := tracer.Start(ctx, "verify.cycle")
	defer span.End()

	started := v.now()
	var stats Stats

	err := v.store.InTx(ctx, func(tx link.Store) error {
		return v.scan(ctx, tx, &stats)
	})
	if err != nil {
		span.SetStatus(codes.Error, "cycle aborted")
		cyclesTotal.WithLabelValues("error").Inc()
		return stats, fmt.Errorf("verify: cycle: %w", err)
	}

	span.SetAttributes(
		attribute.Int("checked", stats.Checked),
		attribute.Int("removed", stats.Removed),
		attribute.Int("failed", stats.Failed),
	)
	cyclesTotal.WithLabelValues("ok").Inc()
	cycleDuration.Observe(time.Since(started).Seconds())
	usersChecked.Add(float64(stats.Checked))
	usersRemoved.Add(float64(stats.Removed))
	usersFailed.Add(float64(stats.Failed))

	v.logger.Info("verification cycle completed",
		"checked", stats.Checked,
		"removed", stats.Removed,
		"failed", stats.Failed,
		"duration", time.Since(started),
	)
	return stats, nil
}

// scan walks every guild and its links within the cycle transaction.
func (v *Verifier) scan(ctx context.Context, tx link.Store, stats *Stats) error {
	guilds, err := tx.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("loading guilds: %w", err)
	}

	for _, g := range guilds {
		allowed, err := tx.GuildRoles(ctx, g.GuildID)
		if err != nil {
			return fmt.Errorf("loading allowed roles for guild %d: %w", g.GuildID, err)
		}
		if len(allowed) == 0 {
			// Cannot evaluate qualification without configured roles.
			// Skipping avoids mass removal on a half-configured guild.
			v.logger.Warn("guild has no allowed roles, skipping", "guild_id", g.GuildID)
			continue
		}

		links, err := tx.LinksByGuild(ctx, g.GuildID)
		if err != nil {
			return fmt.Errorf("loading links for guild %d: %w", g.GuildID, err)
		}

		for i, l := range links {
			if i > 0 {
				if err := sleep(ctx, v.delay); err != nil {
					return err
				}
			}
			stats.Checked++
			v.checkUser(ctx, tx, g, allowed, l, stats)
		}
	}
	return nil
}

// checkUser audits one link. Failures mark the user as failed and keep the
// link; the cycle continues with the next user.
func (v *Verifier) checkUser(ctx context.Context, tx link.Store, g link.Guild, allowed []int64, l link.UserLink, stats *Stats) {
	roles, err := v.roles.MemberRoles(ctx, l.GuildID, l.DiscordID)
	if err != nil {
		// Transient API errors must not cost anyone their access.
		stats.Failed++
		v.logger.Warn("role fetch failed, keeping link",
			"discord_id", l.DiscordID,
			"guild_id", l.GuildID,
			"error", err,
		)
		return
	}

	if intersects(roles, allowed) {
		if err := tx.TouchLastCheck(ctx, l.ID, v.now()); err != nil {
			stats.Failed++
			v.logger.Warn("updating last_check failed", "link_id", l.ID, "error", err)
		}
		return
	}

	// Revocation order is load-bearing: the remove action must be queued
	// before the link row disappears. A crash in between means a harmless
	// duplicate kick next cycle, never silently retained access.
	if err := v.queue.Enqueue(actions.Remove(l.TelegramID, g.TelegramGroupID)); err != nil {
		stats.Failed++
		v.logger.Error("remove enqueue failed, keeping link",
			"discord_id", l.DiscordID,
			"telegram_id", l.TelegramID,
			"error", err,
		)
		return
	}
	if err := tx.DeleteLink(ctx, l.ID); err != nil {
		// The kick is already queued; the stale row is retried next cycle.
		stats.Failed++
		v.logger.Error("link delete failed after remove was enqueued",
			"link_id", l.ID,
			"error", err,
		)
		return
	}

	stats.Removed++
	v.logger.Info("access revoked",
		"discord_id", l.DiscordID,
		"telegram_id", l.TelegramID,
		"guild_id", g.GuildID,
	)
}

// intersects reports whether any of the user's roles is in the allowed set.
func intersects(roles, allowed []int64) bool {
	set := make(map[int64]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, id := range roles {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

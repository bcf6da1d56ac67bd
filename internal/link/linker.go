package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStateTTL bounds how long a pending state token stays usable. Short
// on purpose: the token is a single-use credential.
const DefaultStateTTL = 10 * time.Minute

var tracer = otel.Tracer("bouncer/linker")

var (
	pendingCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bouncer_linker_pending_created_total",
		Help: "Pending link states created by oauth start.",
	})
	linksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bouncer_linker_links_created_total",
		Help: "User links created by completed oauth callbacks.",
	})
	callbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bouncer_linker_callback_failures_total",
		Help: "Oauth callback failures by reason.",
	}, []string{"reason"})
)

// DiscordAuth is the part of the Discord API surface the linker needs.
// The discord module implements it; tests substitute a fake.
type DiscordAuth interface {
	// AuthorizeURL returns the Discord authorization URL carrying state.
	AuthorizeURL(state string) string

	// ExchangeCode trades an authorization code for a bearer access token.
	ExchangeCode(ctx context.Context, code string) (string, error)

	// CurrentUser fetches the identity behind an access token.
	CurrentUser(ctx context.Context, accessToken string) (DiscordUser, error)
}

// Config holds the linker's tunables.
type Config struct {
	// StateTTL is the validity window of a pending state token.
	StateTTL time.Duration

	// GuildID is the Discord guild new links are associated with for role
	// evaluation.
	GuildID int64
}

// Linker orchestrates the Discord authorization-code exchange and creates a
// permanent link between a Telegram user and a Discord user exactly once.
type Linker struct {
	cfg     Config
	store   Store
	discord DiscordAuth
	queue   actions.Enqueuer
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Linker. All dependencies are required.
func New(cfg Config, store Store, discord DiscordAuth, queue actions.Enqueuer, logger *slog.Logger) *Linker {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		cfg:     cfg,
		store:   store,
		discord: discord,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins a linking attempt for the given Telegram user: it persists a
// fresh single-use state token and returns the Discord authorization URL the
// user must visit. If the user is already linked, no state is created and
// ErrAlreadyLinked is returned.
func (l *Linker) Start(ctx context.Context, telegramID int64) (string, error) {
	ctx, span := tracer.Start(ctx, "linker.start",
		trace.WithAttributes(attribute.Int64("telegram_id", telegramID)))
	defer span.End()

	if telegramID < 1 {
		return "", fmt.Errorf("%w: telegram_id must be a positive integer", ErrInvalidInput)
	}

	if _, err := l.store.LinkByTelegramID(ctx, telegramID); err == nil {
		return "", ErrAlreadyLinked
	} else if !errors.Is(err, ErrNotFound) {
		span.SetStatus(codes.Error, "store lookup failed")
		return "", fmt.Errorf("link: checking existing link: %w", err)
	}

	token, err := NewStateToken()
	if err != nil {
		return "", err
	}

	now := l.now()
	pending := PendingLink{
		Token:      token,
		TelegramID: telegramID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.cfg.StateTTL),
	}
	if err := l.store.CreatePending(ctx, pending); err != nil {
		span.SetStatus(codes.Error, "persisting pending state failed")
		return "", fmt.Errorf("link: saving pending state: %w", err)
	}

	pendingCreated.Inc()
	l.logger.Debug("link attempt started", "telegram_id", telegramID, "expires_at", pending.ExpiresAt)
	return l.discord.AuthorizeURL(token), nil
}

// Callback completes a linking attempt. Steps run strictly in order and each
// is a hard fail point: consume the pending state, exchange the code, fetch
// the Discord identity, check uniqueness and insert the link in one
// transaction, then enqueue the invite. The attempt is one-shot: once the
// state is consumed a failure means the user restarts from Start.
//
// Returns the linked Discord username for the confirmation page.
func (l *Linker) Callback(ctx context.Context, code, stateToken string) (string, error) {
	ctx, span := tracer.Start(ctx, "linker.callback")
	defer span.End()

	if code == "" || stateToken == "" {
		callbackFailures.WithLabelValues("invalid_input").Inc()
		return "", fmt.Errorf("%w: code and state are required", ErrInvalidInput)
	}

	// Step 1: consume the pending state. Atomic fetch-and-delete makes the
	// token single-use even under concurrent callbacks.
	pending, err := l.store.ConsumePending(ctx, stateToken, l.now())
	if err != nil {
		callbackFailures.WithLabelValues(failureReason(err)).Inc()
		return "", err
	}
	span.SetAttributes(attribute.Int64("telegram_id", pending.TelegramID))

	// Step 2: exchange the authorization code.
	accessToken, err := l.discord.ExchangeCode(ctx, code)
	if err != nil {
		span.SetStatus(codes.Error, "code exchange failed")
		callbackFailures.WithLabelValues("upstream").Inc()
		return "", fmt.Errorf("%w: exchanging code: %v", ErrUpstream, err)
	}

	// Step 3: fetch the Discord identity.
	user, err := l.discord.CurrentUser(ctx, accessToken)
	if err != nil {
		span.SetStatus(codes.Error, "identity fetch failed")
		callbackFailures.WithLabelValues("upstream").Inc()
		return "", fmt.Errorf("%w: fetching identity: %v", ErrUpstream, err)
	}

	// Steps 4 and 5 share one transaction so the uniqueness check and the
	// insert are atomic with respect to concurrent callbacks for the same
	// discord id.
	newLink := &UserLink{
		DiscordID:  user.ID,
		TelegramID: pending.TelegramID,
		GuildID:    l.cfg.GuildID,
	}
	err = l.store.InTx(ctx, func(tx Store) error {
		existing, err := tx.LinkByDiscordID(ctx, user.ID)
		if err == nil {
			if existing.TelegramID != pending.TelegramID {
				return ErrConflict
			}
			return ErrAlreadyLinked
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("checking discord id: %w", err)
		}
		return tx.CreateLink(ctx, newLink)
	})
	if err != nil {
		callbackFailures.WithLabelValues(failureReason(err)).Inc()
		return "", err
	}

	linksCreated.Inc()
	l.logger.Info("accounts linked",
		"telegram_id", pending.TelegramID,
		"discord_id", user.ID,
		"discord_username", user.Username,
	)

	// Steps 6 and 7 are fire-and-forget: the link row is the source of
	// truth, so an enqueue failure is logged and never rolls it back.
	l.enqueueInvite(ctx, newLink)

	return user.Username, nil
}

// enqueueInvite sends the invite action for a fresh link and stamps
// added_to_group_at on success.
func (l *Linker) enqueueInvite(ctx context.Context, newLink *UserLink) {
	guild, err := l.store.GuildByID(ctx, newLink.GuildID)
	if err != nil {
		l.logger.Error("invite not enqueued: guild lookup failed",
			"guild_id", newLink.GuildID,
			"telegram_id", newLink.TelegramID,
			"error", err,
		)
		return
	}

	if err := l.queue.Enqueue(actions.Invite(newLink.TelegramID, guild.TelegramGroupID)); err != nil {
		l.logger.Error("invite enqueue failed",
			"telegram_id", newLink.TelegramID,
			"group_id", guild.TelegramGroupID,
			"error", err,
		)
		return
	}

	if err := l.store.MarkAddedToGroup(ctx, newLink.ID, l.now()); err != nil {
		l.logger.Error("marking added_to_group_at failed", "link_id", newLink.ID, "error", err)
	}
}

// failureReason buckets an error for the callback failure counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrStateNotFound):
		return "invalid_state"
	case errors.Is(err, ErrAlreadyLinked):
		return "already_linked"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "storage"
	}
}

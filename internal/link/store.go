package link

import (
	"context"
	"time"
)

// PendingStore manages short-lived OAuth state tokens.
type PendingStore interface {
	// CreatePending persists a new pending link.
	CreatePending(ctx context.Context, p PendingLink) error

	// ConsumePending atomically removes and returns the unexpired pending
	// link for token. Returns ErrStateNotFound when the token is unknown,
	// already consumed, or past its expiry at now.
	ConsumePending(ctx context.Context, token string, now time.Time) (PendingLink, error)

	// PurgeExpired deletes pending links whose expiry is at or before now
	// and reports how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// LinkStore manages durable Discord-to-Telegram links.
type LinkStore interface {
	// CreateLink inserts a new link and fills in its ID. A duplicate
	// DiscordID surfaces as ErrConflict, a duplicate TelegramID as
	// ErrAlreadyLinked.
	CreateLink(ctx context.Context, l *UserLink) error

	// LinkByTelegramID returns the link for a Telegram user id, or
	// ErrNotFound.
	LinkByTelegramID(ctx context.Context, telegramID int64) (*UserLink, error)

	// LinkByDiscordID returns the link for a Discord user id, or
	// ErrNotFound.
	LinkByDiscordID(ctx context.Context, discordID int64) (*UserLink, error)

	// Links returns all links ordered by creation time.
	Links(ctx context.Context) ([]UserLink, error)

	// LinksByGuild returns all links associated with the given guild.
	LinksByGuild(ctx context.Context, guildID int64) ([]UserLink, error)

	// DeleteLink removes a link by its row id. Returns ErrNotFound if no
	// such link exists.
	DeleteLink(ctx context.Context, id int64) error

	// TouchLastCheck stamps the time the verifier last audited the link.
	TouchLastCheck(ctx context.Context, id int64, at time.Time) error

	// MarkAddedToGroup stamps the time the invite action was enqueued.
	MarkAddedToGroup(ctx context.Context, id int64, at time.Time) error
}

// GuildStore manages allowed guilds and their qualifying role ids.
// Rows are owned by admin tooling; the verifier reads them.
type GuildStore interface {
	Guilds(ctx context.Context) ([]Guild, error)

	// GuildByID returns the guild row, or ErrNotFound.
	GuildByID(ctx context.Context, guildID int64) (*Guild, error)

	// UpsertGuild inserts the guild or updates its Telegram group binding.
	UpsertGuild(ctx context.Context, g Guild) error

	// DeleteGuild removes a guild and its role list. Returns ErrNotFound
	// if no such guild exists.
	DeleteGuild(ctx context.Context, guildID int64) error

	// GuildRoles returns the qualifying role ids for a guild.
	GuildRoles(ctx context.Context, guildID int64) ([]int64, error)

	AddGuildRole(ctx context.Context, guildID, roleID int64) error
	RemoveGuildRole(ctx context.Context, guildID, roleID int64) error
}

// Store aggregates all persistence used by the linker and the verifier.
type Store interface {
	PendingStore
	LinkStore
	GuildStore

	// InTx runs fn inside a single database transaction. The Store passed
	// to fn routes every call through that transaction; InTx commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error
}

// Package link implements the Discord-to-Telegram account linking domain:
// short-lived pending OAuth state, durable user links, allowed guilds with
// their qualifying roles, and the linker state machine that ties a Telegram
// identity to a Discord identity exactly once.
package link

import "time"

// PendingLink is a single-use OAuth state token binding a Telegram user id
// to an in-progress Discord authorization attempt. It is consumed
// (read-and-deleted atomically) by the callback and is only valid before
// ExpiresAt.
type PendingLink struct {
	Token      string
	TelegramID int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the pending link is past its expiry at now.
func (p PendingLink) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// UserLink is the durable, unique pairing of one Discord identity to one
// Telegram identity. DiscordID and TelegramID are each unique across all
// links; GuildID names the guild whose roles gate the user's membership.
type UserLink struct {
	ID             int64
	DiscordID      int64
	TelegramID     int64
	GuildID        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AddedToGroupAt *time.Time
	LastCheck      *time.Time
}

// Guild is an allowed Discord guild bound to the Telegram group it gates.
// Qualifying role ids are stored separately per guild.
type Guild struct {
	GuildID         int64
	TelegramGroupID int64
	CreatedAt       time.Time
}

// DiscordUser is the identity returned by Discord for an authorized user.
type DiscordUser struct {
	ID       int64
	Username string
}

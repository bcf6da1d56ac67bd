// Package gateway provides the HTTP surface of the bouncer: the public
// OAuth link endpoints, health and metrics probes, and an authenticated
// admin API for links, guilds, and roles. It binds to loopback by default
// and follows the module system pattern.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bouncerbot/bouncer/internal/link"
)

// handleRunVerify triggers a verification cycle and reports its stats.
func (g *Gateway) handleRunVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The cycle must outlive the request: a client disconnect must not
		// abort it halfway through a guild roster.
		stats, err := g.verifier.RunCycle(context.WithoutCancel(r.Context()))
		if err != nil {
			g.logger.Error("admin-triggered verification failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "verification cycle failed"})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// linkJSON is a serializable link snapshot.
type linkJSON struct {
	ID             int64  `json:"id"`
	DiscordID      int64  `json:"discord_id"`
	TelegramID     int64  `json:"telegram_id"`
	GuildID        int64  `json:"guild_id"`
	CreatedAt      string `json:"created_at"`
	AddedToGroupAt string `json:"added_to_group_at,omitempty"`
	LastCheck      string `json:"last_check,omitempty"`
}

func toLinkJSON(l link.UserLink) linkJSON {
	out := linkJSON{
		ID:         l.ID,
		DiscordID:  l.DiscordID,
		TelegramID: l.TelegramID,
		GuildID:    l.GuildID,
		CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.AddedToGroupAt != nil {
		out.AddedToGroupAt = l.AddedToGroupAt.UTC().Format(time.RFC3339)
	}
	if l.LastCheck != nil {
		out.LastCheck = l.LastCheck.UTC().Format(time.RFC3339)
	}
	return out
}

// handleListLinks returns all links as JSON.
func (g *Gateway) handleListLinks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := g.store.Links(r.Context())
		if err != nil {
			g.logger.Error("listing links", "error", err)
			http.Error(w, "listing links failed", http.StatusInternalServerError)
			return
		}

		out := make([]linkJSON, 0, len(links))
		for _, l := range links {
			out = append(out, toLinkJSON(l))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleDeleteLink unlinks an account by Discord user id. The Telegram side
// is not kicked; removal from the group is the verifier's job.
func (g *Gateway) handleDeleteLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discordID, ok := pathID(w, r, "discord_id")
		if !ok {
			return
		}

		l, err := g.store.LinkByDiscordID(r.Context(), discordID)
		if err != nil {
			if errors.Is(err, link.ErrNotFound) {
				http.Error(w, "link not found", http.StatusNotFound)
				return
			}
			g.logger.Error("looking up link", "discord_id", discordID, "error", err)
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}

		if err := g.store.DeleteLink(r.Context(), l.ID); err != nil {
			if errors.Is(err, link.ErrNotFound) {
				http.Error(w, "link not found", http.StatusNotFound)
				return
			}
			g.logger.Error("deleting link", "discord_id", discordID, "error", err)
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("link removed by admin", "discord_id", discordID, "telegram_id", l.TelegramID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// guildJSON is a serializable guild snapshot.
type guildJSON struct {
	GuildID         int64  `json:"guild_id"`
	TelegramGroupID int64  `json:"telegram_group_id"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// handleListGuilds returns all configured guilds as JSON.
func (g *Gateway) handleListGuilds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guilds, err := g.store.Guilds(r.Context())
		if err != nil {
			g.logger.Error("listing guilds", "error", err)
			http.Error(w, "listing guilds failed", http.StatusInternalServerError)
			return
		}

		out := make([]guildJSON, 0, len(guilds))
		for _, gu := range guilds {
			out = append(out, guildJSON{
				GuildID:         gu.GuildID,
				TelegramGroupID: gu.TelegramGroupID,
				CreatedAt:       gu.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleUpsertGuild creates a guild binding or repoints an existing one at
// a different Telegram group.
func (g *Gateway) handleUpsertGuild() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req guildJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.GuildID < 1 {
			http.Error(w, "guild_id must be a positive integer", http.StatusBadRequest)
			return
		}
		// Supergroup ids are negative, so only zero is invalid.
		if req.TelegramGroupID == 0 {
			http.Error(w, "telegram_group_id is required", http.StatusBadRequest)
			return
		}

		err := g.store.UpsertGuild(r.Context(), link.Guild{
			GuildID:         req.GuildID,
			TelegramGroupID: req.TelegramGroupID,
		})
		if err != nil {
			g.logger.Error("upserting guild", "guild_id", req.GuildID, "error", err)
			http.Error(w, "upsert failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("guild configured", "guild_id", req.GuildID, "group_id", req.TelegramGroupID)
		writeJSON(w, http.StatusOK, guildJSON{GuildID: req.GuildID, TelegramGroupID: req.TelegramGroupID})
	}
}

// handleDeleteGuild removes a guild binding and its role list.
func (g *Gateway) handleDeleteGuild() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := pathID(w, r, "guild_id")
		if !ok {
			return
		}

		if err := g.store.DeleteGuild(r.Context(), guildID); err != nil {
			if errors.Is(err, link.ErrNotFound) {
				http.Error(w, "guild not found", http.StatusNotFound)
				return
			}
			g.logger.Error("deleting guild", "guild_id", guildID, "error", err)
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("guild removed by admin", "guild_id", guildID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// guildRolesJSON is the response for the role list endpoint.
type guildRolesJSON struct {
	GuildID int64   `json:"guild_id"`
	RoleIDs []int64 `json:"role_ids"`
}

// roleJSON is the request body for adding a qualifying role.
type roleJSON struct {
	RoleID int64 `json:"role_id"`
}

// handleListGuildRoles returns the qualifying role ids for a guild.
func (g *Gateway) handleListGuildRoles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := g.requireGuild(w, r)
		if !ok {
			return
		}

		roles, err := g.store.GuildRoles(r.Context(), guildID)
		if err != nil {
			g.logger.Error("listing guild roles", "guild_id", guildID, "error", err)
			http.Error(w, "listing roles failed", http.StatusInternalServerError)
			return
		}
		if roles == nil {
			roles = []int64{}
		}
		writeJSON(w, http.StatusOK, guildRolesJSON{GuildID: guildID, RoleIDs: roles})
	}
}

// handleAddGuildRole adds a qualifying role to a guild. Idempotent.
func (g *Gateway) handleAddGuildRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := g.requireGuild(w, r)
		if !ok {
			return
		}

		var req roleJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.RoleID < 1 {
			http.Error(w, "role_id must be a positive integer", http.StatusBadRequest)
			return
		}

		if err := g.store.AddGuildRole(r.Context(), guildID, req.RoleID); err != nil {
			g.logger.Error("adding guild role", "guild_id", guildID, "role_id", req.RoleID, "error", err)
			http.Error(w, "adding role failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("qualifying role added", "guild_id", guildID, "role_id", req.RoleID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRemoveGuildRole removes a qualifying role from a guild. Removing an
// absent role is a no-op.
func (g *Gateway) handleRemoveGuildRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID, ok := pathID(w, r, "guild_id")
		if !ok {
			return
		}
		roleID, ok := pathID(w, r, "role_id")
		if !ok {
			return
		}

		if err := g.store.RemoveGuildRole(r.Context(), guildID, roleID); err != nil {
			g.logger.Error("removing guild role", "guild_id", guildID, "role_id", roleID, "error", err)
			http.Error(w, "removing role failed", http.StatusInternalServerError)
			return
		}

		g.logger.Info("qualifying role removed", "guild_id", guildID, "role_id", roleID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// requireGuild parses the guild_id URL parameter and checks the guild
// exists, writing the error response itself when it does not.
func (g *Gateway) requireGuild(w http.ResponseWriter, r *http.Request) (int64, bool) {
	guildID, ok := pathID(w, r, "guild_id")
	if !ok {
		return 0, false
	}

	if _, err := g.store.GuildByID(r.Context(), guildID); err != nil {
		if errors.Is(err, link.ErrNotFound) {
			http.Error(w, "guild not found", http.StatusNotFound)
			return 0, false
		}
		g.logger.Error("looking up guild", "guild_id", guildID, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return 0, false
	}
	return guildID, true
}

// pathID parses a positive integer URL parameter, writing a 400 response
// itself when the value is missing or malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

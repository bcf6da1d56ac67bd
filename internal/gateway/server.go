package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// instrument sits outside Recoverer so a recovered panic is still
	// counted and logged as a 500.
	r.Use(g.instrument)
	r.Use(middleware.Recoverer)

	// Public. The OAuth endpoints are opened by end users from Telegram,
	// so they can never sit behind admin auth.
	r.Get("/oauth/start", g.handleOAuthStart())
	r.Get("/oauth/callback", g.handleOAuthCallback())
	r.Get("/healthz", g.handleHealthz())
	r.Get("/readyz", g.handleReadyz())
	r.Handle("/metrics", promhttp.Handler())

	// Admin endpoints require auth. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Post("/verify", g.handleRunVerify())
				r.Get("/links", g.handleListLinks())
				r.Delete("/links/{discord_id}", g.handleDeleteLink())
				r.Get("/guilds", g.handleListGuilds())
				r.Post("/guilds", g.handleUpsertGuild())
				r.Delete("/guilds/{guild_id}", g.handleDeleteGuild())
				r.Get("/guilds/{guild_id}/roles", g.handleListGuildRoles())
				r.Post("/guilds/{guild_id}/roles", g.handleAddGuildRole())
				r.Delete("/guilds/{guild_id}/roles/{role_id}", g.handleRemoveGuildRole())
			})
		})
	}

	return r
}

package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bouncerbot/bouncer/internal/link"
)

// handleOAuthStart begins a link attempt. Telegram sends users here with
// their numeric id in the query string; on success the user is redirected
// to Discord's consent screen.
func (g *Gateway) handleOAuthStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("telegram_id")
		telegramID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || telegramID < 1 {
			g.renderError(w, http.StatusBadRequest,
				"This link is malformed. Send /start to the bot again to get a fresh one.")
			return
		}

		authorizeURL, err := g.linker.Start(r.Context(), telegramID)
		if err != nil {
			g.renderLinkError(w, r, err)
			return
		}

		http.Redirect(w, r, authorizeURL, http.StatusFound)
	}
}

// handleOAuthCallback completes a link attempt after Discord redirects back.
func (g *Gateway) handleOAuthCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		// Discord reports user refusal via an error parameter instead of
		// a code. Nothing to clean up: the pending state just expires.
		if q.Get("error") != "" {
			g.renderError(w, http.StatusBadRequest,
				"Authorization was cancelled. Send /start to the bot again if you change your mind.")
			return
		}

		username, err := g.linker.Callback(r.Context(), q.Get("code"), q.Get("state"))
		if err != nil {
			g.renderLinkError(w, r, err)
			return
		}

		g.renderSuccess(w, username)
	}
}

// renderLinkError maps linker errors onto the HTTP error contract: user
// errors get a 4xx with a specific message, upstream failures a 502, and
// everything else a generic 500. Internal detail goes to the log only.
func (g *Gateway) renderLinkError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case link.IsUserError(err):
		g.renderError(w, http.StatusBadRequest, userMessage(err))
	case errors.Is(err, link.ErrUpstream):
		g.logger.Error("oauth upstream failure", "path", r.URL.Path, "error", err)
		g.renderError(w, http.StatusBadGateway,
			"Discord did not respond. Please try again in a minute.")
	default:
		g.logger.Error("oauth internal failure", "path", r.URL.Path, "error", err)
		g.renderError(w, http.StatusInternalServerError,
			"Something went wrong on our side. Please try again later.")
	}
}

// userMessage translates a user-caused linker error into copy safe to show
// in the browser.
func userMessage(err error) string {
	switch {
	case errors.Is(err, link.ErrStateNotFound):
		return "This link has expired or was already used. Send /start to the bot again to get a fresh one."
	case errors.Is(err, link.ErrAlreadyLinked):
		return "This Telegram account is already linked to a Discord account."
	case errors.Is(err, link.ErrConflict):
		return "That Discord account is already linked to a different Telegram account."
	default:
		return "This link is malformed. Send /start to the bot again to get a fresh one."
	}
}

package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Links         int   `json:"links"`
	Guilds        int   `json:"guilds"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
		}

		links, err := g.store.Links(r.Context())
		if err != nil {
			g.logger.Error("status: listing links", "error", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		resp.Links = len(links)

		guilds, err := g.store.Guilds(r.Context())
		if err != nil {
			g.logger.Error("status: listing guilds", "error", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		resp.Guilds = len(guilds)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

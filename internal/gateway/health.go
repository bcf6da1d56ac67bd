package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the JSON response for GET /healthz and GET /readyz.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "unavailable"
	Error  string `json:"error,omitempty"`
}

// handleHealthz reports process liveness. It answers 200 as long as the
// HTTP server is up; storage state is the readiness probe's business.
func (g *Gateway) handleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	}
}

// handleReadyz reports readiness: 200 when the store answers a ping,
// 503 otherwise.
func (g *Gateway) handleReadyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := g.store.Ping(r.Context()); err != nil {
			g.logger.Warn("readiness probe failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{Status: "unavailable", Error: "store unreachable"})
			return
		}

		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	}
}

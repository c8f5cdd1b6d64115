package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
	Uptime string `json:"uptime"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The relay holds
// no dependencies worth probing, so a running process is healthy.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ok",
			Mode:   g.config.Mode,
			Uptime: time.Since(g.startedAt).Round(time.Second).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package api serves the read-only HTTP endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carlosprados/agentmgr/internal/status"
	"github.com/carlosprados/agentmgr/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Latest gives the most recent status snapshot.
type Latest interface {
	Latest() (st status.AgentStatus, at time.Time, ok bool)
}

type statusResponse struct {
	status.AgentStatus
	SampledAt string `json:"sampled_at"`
}

// Router returns the handler for /healthz, /v1/status and /metrics.
func Router(src Latest, start time.Time) http.Handler {
	mux := http.NewServeMux()

	// Liveness probe
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, at, ok := src.Latest()
		body := map[string]any{
			"status":   "ok",
			"uptime":   time.Since(start).String(),
			"version":  version.Version,
			"time_utc": time.Now().UTC().Format(time.RFC3339),
			"sampled":  ok,
		}
		if ok {
			body["sampled_at"] = at.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		st, at, ok := src.Latest()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no status sampled yet"})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{AgentStatus: st, SampledAt: at.UTC().Format(time.RFC3339)})
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

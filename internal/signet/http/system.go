package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/pkg/httpx"
)

// LivezHandler is the liveness probe: always 200 while the process runs.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"uptime":  time.Since(startTime).String(),
			"version": version,
		})
	}
}

// ReadyzHandler is the readiness probe: 200 only when the store answers.
func ReadyzHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

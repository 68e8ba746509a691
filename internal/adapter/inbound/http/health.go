package http

import (
	"encoding/json"
	"net/http"
)

// healthHandler answers liveness probes. It reports "ok" unconditionally —
// the sidecar has no external dependency (DB, cache) whose outage should
// flip it unhealthy; upstream reachability is reported per-request via 502,
// not here.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

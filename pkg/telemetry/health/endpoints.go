package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler serves the full aggregated snapshot. Healthy and degraded
// report 200 so that a partially impaired gateway keeps receiving
// traffic; unhealthy and critical report 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(snap.Status.HTTPStatus())
		if r.Method != http.MethodHead {
			_ = json.NewEncoder(w).Encode(snap)
		}
	}
}

// LivenessHandler reports the process alive. It runs no checks: a live
// process with an unhealthy dependency must not be restarted for it.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":    "alive",
				"timestamp": time.Now().UTC(),
			})
		}
	}
}

// ReadinessHandler reports 503 until the server flips the readiness gate,
// and again once shutdown begins, so load balancers drain before the
// listener closes.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := "ready"
		code := http.StatusOK
		if !c.Ready() {
			status = "not ready"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if r.Method != http.MethodHead {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":    status,
				"timestamp": time.Now().UTC(),
			})
		}
	}
}

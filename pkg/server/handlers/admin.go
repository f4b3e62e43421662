package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/usage"
)

// defaultUsageWindow is the summary window when ?since= is absent.
const defaultUsageWindow = 24 * time.Hour

// AdminHandler serves the operator surface: clearing state, inspecting
// the dead-letter queue, credential health, alerts, and usage summaries.
// Auth happens in middleware; every handler here may assume the caller is
// an operator.
type AdminHandler struct {
	pool     *credential.Pool
	cache    *cache.SemanticCache
	queue    *queue.Queue
	recorder *usage.Recorder
	logger   *slog.Logger
}

// NewAdminHandler creates the admin handler. The cache and recorder may
// be nil when those subsystems are disabled.
func NewAdminHandler(pool *credential.Pool, sc *cache.SemanticCache, q *queue.Queue, recorder *usage.Recorder, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		pool:     pool,
		cache:    sc,
		queue:    q,
		recorder: recorder,
		logger:   logger.With("component", "admin"),
	}
}

// ClearCache handles POST /admin/cache/clear. Idempotent; clearing a
// disabled cache reports zero entries removed.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed := 0
	if h.cache != nil {
		removed = h.cache.Cache().Len()
		h.cache.Clear()
	}
	h.logger.InfoContext(r.Context(), "cache cleared by admin", "entries_removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "cleared",
		"entries_removed": removed,
	})
}

// ClearQueue handles POST /admin/queue/clear. Removes every job record
// including the dead-letter set.
func (h *AdminHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()
	removed := stats.Pending + stats.Processing + stats.Completed + stats.Failed
	h.queue.Clear()
	h.logger.InfoContext(r.Context(), "queue cleared by admin", "jobs_removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "cleared",
		"jobs_removed": removed,
	})
}

// ListDLQ handles GET /admin/queue/dlq?limit=. Jobs are returned oldest
// first; zero or absent limit returns the whole set.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs := h.queue.GetDLQJobs(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// RetryDLQ handles POST /admin/queue/dlq/{id}/retry. The job returns to
// the back of the queue with a fresh attempt budget.
func (h *AdminHandler) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.queue.RetryDLQJob(id) {
		writeError(w, http.StatusNotFound, ErrorTypeNotFound, "no dead-letter job with that id")
		return
	}
	h.logger.InfoContext(r.Context(), "dead-letter job requeued by admin", "job_id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "requeued",
		"job_id": id,
	})
}

// Alerts handles GET /admin/alerts.
func (h *AdminHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.pool.UsageAlerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Credentials handles GET /admin/credentials. Views carry limits, usage,
// and circuit state but never key material.
func (h *AdminHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"health":      h.pool.HealthStatus(),
		"capacity":    h.pool.Capacity(),
		"credentials": h.pool.Snapshot(),
	})
}

// Usage handles GET /admin/usage?since=. Accepts a duration ("24h") or an
// RFC 3339 timestamp; the default window is 24 hours.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultUsageWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			since = time.Now().Add(-d)
		} else if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		} else {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest,
				"since must be a duration like 24h or an RFC 3339 timestamp")
			return
		}
	}

	var summary usage.Summary
	if h.recorder != nil {
		var err error
		summary, err = h.recorder.Summarize(r.Context(), since)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "usage summary failed", "error", err)
			writeError(w, http.StatusInternalServerError, ErrorTypeServerError, "usage summary failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":   since,
		"summary": summary,
	})
}

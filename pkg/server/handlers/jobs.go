package handlers

import (
	"encoding/json"
	"net/http"

	"mercator-hq/ganymede/pkg/gateway"
	"mercator-hq/ganymede/pkg/queue"
)

// JobsHandler serves the job polling endpoint for deferred admissions.
type JobsHandler struct {
	gateway *gateway.Gateway
}

// NewJobsHandler creates the job status handler.
func NewJobsHandler(gw *gateway.Gateway) *JobsHandler {
	return &JobsHandler{gateway: gw}
}

// ServeHTTP implements http.Handler for GET /v1/jobs/{id}.
func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, ok := h.gateway.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorTypeNotFound, "no job with that id")
		return
	}

	resp := JobResponse{
		ID:          job.ID,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Result:      json.RawMessage(job.Result),
	}
	if job.Status == queue.StatusFailed {
		resp.Error = "retry budget exhausted"
	}
	writeJSON(w, http.StatusOK, resp)
}

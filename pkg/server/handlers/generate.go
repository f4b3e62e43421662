package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mercator-hq/ganymede/pkg/gateway"
	"mercator-hq/ganymede/pkg/upstream"
)

// maxGenerateBody bounds the admission request body. Prompts past this
// point would blow the cache and the queue long before the upstream
// rejected them.
const maxGenerateBody = 1 << 20

// GenerateHandler serves the admission endpoint. The three admission
// outcomes map to 200 (completed), 202 (queued), and 503 (unavailable);
// credential identity and upstream failure detail never appear in the
// response.
type GenerateHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewGenerateHandler creates the admission handler.
func NewGenerateHandler(gw *gateway.Gateway, logger *slog.Logger) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{gateway: gw, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxGenerateBody)

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, "request body is not valid JSON")
		return
	}

	out, err := h.gateway.Generate(r.Context(), upstream.Request{
		Model:       req.Model,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		// Generate only errors on validation, and validation messages
		// describe the caller's own input.
		writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, err.Error())
		return
	}

	switch out.Kind {
	case gateway.KindCompleted:
		writeJSON(w, http.StatusOK, GenerateResponse{
			Text:         out.Result.Text,
			Model:        out.Result.Model,
			StopReason:   out.Result.StopReason,
			InputTokens:  out.Result.Usage.InputTokens,
			OutputTokens: out.Result.Usage.OutputTokens,
			LatencyMS:    out.Result.LatencyMS,
			Cached:       out.Cached,
		})
	case gateway.KindQueued:
		writeJSON(w, http.StatusAccepted, QueuedResponse{
			JobID:  out.JobID,
			Status: "queued",
		})
	default:
		writeError(w, http.StatusServiceUnavailable, ErrorTypeServiceUnavailable,
			"no upstream capacity and the retry queue is full, try again later")
	}
}

// Package upstream provides a scriptable stand-in for the messages API,
// shared by client, gateway, and worker tests.
package upstream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockServer simulates the upstream messages API. Responses are scripted
// in order; once the script is exhausted every further call receives the
// fallback response, which defaults to a successful generation. Each
// request's key and prompt are captured for assertions.
type MockServer struct {
	server *httptest.Server

	mu       sync.Mutex
	script   []Response
	fallback Response
	requests []ReceivedRequest
}

// Response is one scripted upstream reply.
type Response struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
}

// ReceivedRequest captures what the client sent on one call.
type ReceivedRequest struct {
	APIKey string
	Model  string
	System string
	Prompt string
}

// NewMockServer starts a mock upstream that answers every call with a
// generic successful generation until scripted otherwise.
func NewMockServer() *MockServer {
	ms := &MockServer{
		fallback: Message("mock response", "mock-model"),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts the mock server down.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// Script appends responses to be served in order before the fallback.
func (ms *MockServer) Script(responses ...Response) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.script = append(ms.script, responses...)
}

// SetFallback replaces the response served once the script is exhausted.
func (ms *MockServer) SetFallback(resp Response) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.fallback = resp
}

// RequestCount returns the number of calls received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return len(ms.requests)
}

// Requests returns a copy of the captured requests, oldest first.
func (ms *MockServer) Requests() []ReceivedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]ReceivedRequest, len(ms.requests))
	copy(out, ms.requests)
	return out
}

// Reset drops the script, captured requests, and any custom fallback.
func (ms *MockServer) Reset() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.script = nil
	ms.requests = nil
	ms.fallback = Message("mock response", "mock-model")
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}

	var wire struct {
		Model    string `json:"model"`
		System   string `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&wire)

	received := ReceivedRequest{
		APIKey: r.Header.Get("x-api-key"),
		Model:  wire.Model,
		System: wire.System,
	}
	if len(wire.Messages) > 0 {
		received.Prompt = wire.Messages[0].Content
	}

	ms.mu.Lock()
	ms.requests = append(ms.requests, received)
	resp := ms.fallback
	if len(ms.script) > 0 {
		resp = ms.script[0]
		ms.script = ms.script[1:]
	}
	ms.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)

	if resp.Body != nil {
		switch v := resp.Body.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		case []byte:
			_, _ = w.Write(v)
		default:
			_ = json.NewEncoder(w).Encode(resp.Body)
		}
	}
}

// Message creates a successful generation response.
func Message(text, model string) Response {
	return Response{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"id":   "msg_mock",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"model":       model,
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":  10,
				"output_tokens": 20,
			},
		},
	}
}

// ErrorResponse creates an error reply in the upstream's error envelope.
func ErrorResponse(statusCode int, errType, message string) Response {
	return Response{
		StatusCode: statusCode,
		Body: map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    errType,
				"message": message,
			},
		},
	}
}

// AuthError creates a 401 invalid-key response.
func AuthError() Response {
	return ErrorResponse(http.StatusUnauthorized, "authentication_error", "invalid x-api-key")
}

// RateLimited creates a 429 response with a Retry-After header.
func RateLimited(retryAfterSeconds int) Response {
	resp := ErrorResponse(http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
	resp.Headers = map[string]string{"Retry-After": strconv.Itoa(retryAfterSeconds)}
	return resp
}

// InternalError creates a 500 response.
func InternalError() Response {
	return ErrorResponse(http.StatusInternalServerError, "api_error", "internal server error")
}

// Slow wraps a response with a delay, for timeout tests.
func Slow(delay time.Duration, resp Response) Response {
	resp.Delay = delay
	return resp
}

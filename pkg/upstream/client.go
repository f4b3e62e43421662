package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// Request is one generation request to the upstream messages API.
type Request struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// CacheText is the prompt identity used for response caching. It includes
// the system prompt so the same question under different instructions never
// shares a cache entry.
func (r Request) CacheText() string {
	if r.System == "" {
		return r.Prompt
	}
	return r.System + "\n\n" + r.Prompt
}

// Validate rejects requests the upstream could never serve.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &RequestError{Message: "model is required"}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return &RequestError{Message: "prompt is required"}
	}
	if r.MaxTokens < 0 {
		return &RequestError{Message: "max_tokens must not be negative"}
	}
	return nil
}

// Usage is the token cost reported by the upstream.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Result is one completed generation.
type Result struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
	LatencyMS  int64  `json:"latency_ms"`
}

// Client is a single-shot messages API client. It performs no retries:
// retry policy belongs to the job queue, and failure accounting to the
// credential pool, so every call here maps to exactly one upstream
// request.
//
// The API key is passed per call because the credential pool owns key
// selection; the client is otherwise stateless and safe for concurrent
// use.
type Client struct {
	baseURL    string
	apiVersion string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client with a pooled transport.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:     logger.With("component", "upstream"),
	}
}

// messages API wire types

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type wireContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireResponse struct {
	ID         string             `json:"id"`
	Content    []wireContentBlock `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs one messages call with the given key. Errors are
// typed by upstream fault class; the caller decides what they mean for
// the credential and the job.
func (c *Client) Generate(ctx context.Context, apiKey string, req Request) (*Result, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    []wireMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Timeout: c.timeout}
		}
		return nil, &ServerError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Timeout: c.timeout}
		}
		return nil, &ServerError{Message: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp, respBody)
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, &ParseError{Cause: err}
	}

	var text strings.Builder
	for _, block := range wire.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ParseError{Cause: fmt.Errorf("response %s contains no text content", wire.ID)}
	}

	result := &Result{
		Text:       text.String(),
		Model:      wire.Model,
		StopReason: wire.StopReason,
		Usage: Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		},
		LatencyMS: time.Since(start).Milliseconds(),
	}

	c.logger.Debug("generation succeeded",
		"model", result.Model,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"latency_ms", result.LatencyMS)
	return result, nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response, body []byte) error {
	message := errorMessage(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Message: message}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &RequestError{StatusCode: resp.StatusCode, Message: message}
	default:
		return &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
}

// errorMessage extracts the upstream's error detail, falling back to the
// raw body.
func errorMessage(body []byte) string {
	var wire wireError
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

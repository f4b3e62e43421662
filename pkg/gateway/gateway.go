// Package gateway is the admission path for generation requests: cache
// first, then a direct upstream call when a credential is available, then
// the job queue when none is. Every admission ends in exactly one of three
// outcomes - a completed result, a queued job id, or unavailable - and the
// caller never learns which credential served it or why one failed.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/upstream"
	"mercator-hq/ganymede/pkg/usage"
)

// Kind classifies how an admission ended.
type Kind string

const (
	// KindCompleted means a result is in hand, live or from cache.
	KindCompleted Kind = "completed"

	// KindQueued means the request was deferred; the caller polls the job.
	KindQueued Kind = "queued"

	// KindUnavailable means no recovery path remained: cache miss, no
	// credential or a failed call, and no queue room.
	KindUnavailable Kind = "unavailable"
)

// Outcome is the gateway's answer for one admission. Result is set only
// for KindCompleted, JobID only for KindQueued.
type Outcome struct {
	Kind   Kind
	Result *upstream.Result
	Cached bool
	JobID  string
}

// Caller makes one upstream generation call. *upstream.Client implements
// it; tests substitute fakes.
type Caller interface {
	Generate(ctx context.Context, apiKey string, req upstream.Request) (*upstream.Result, error)
}

// Gateway coordinates the cache, the credential pool, and the job queue
// for synchronous admissions. It is stateless apart from its
// collaborators and safe for concurrent use.
type Gateway struct {
	creds    *credential.Pool
	cache    *cache.SemanticCache
	queue    *queue.Queue
	caller   Caller
	recorder *usage.Recorder
	metrics  *metrics.Registry
	logger   *slog.Logger

	now func() time.Time
}

// New wires a gateway to its collaborators. The cache and recorder may be
// nil; a gateway without them still admits requests.
func New(creds *credential.Pool, sc *cache.SemanticCache, q *queue.Queue, caller Caller, recorder *usage.Recorder, reg *metrics.Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry(config.MetricsConfig{})
	}
	return &Gateway{
		creds:    creds,
		cache:    sc,
		queue:    q,
		caller:   caller,
		recorder: recorder,
		metrics:  reg,
		logger:   logger.With("component", "gateway"),
		now:      time.Now,
	}
}

// Generate admits one request. The returned error is non-nil only when the
// request itself is invalid (a *upstream.RequestError); upstream faults
// and capacity exhaustion surface as queued or unavailable outcomes, never
// as errors.
func (g *Gateway) Generate(ctx context.Context, req upstream.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	start := g.now()

	text := req.CacheText()
	if g.cache != nil {
		if entry, ok := g.cache.Lookup(text, req.Model); ok {
			if out, ok := g.replay(entry, text, req.Model, start); ok {
				return out, nil
			}
		}
		g.metrics.Increment("cache_misses_total", nil)
	}

	lease, err := g.creds.Select()
	if err != nil {
		// Legitimate backpressure, not a fault: defer the request.
		return g.deferRequest(req, start, false), nil
	}

	callStart := g.now()
	res, callErr := g.caller.Generate(ctx, lease.Key, req)
	elapsed := g.now().Sub(callStart)
	g.metrics.Increment("upstream_requests_total", metrics.Labels{
		"credential": lease.CredentialID,
		"status":     upstream.ErrorClass(callErr),
	})
	g.metrics.Observe("upstream_duration_seconds", elapsed.Seconds(), nil)

	if callErr != nil {
		g.creds.ReportFailure(lease.CredentialID, callErr)
		out := g.deferRequest(req, start, true)
		g.record(usage.Record{
			RequestID:    out.JobID,
			CredentialID: lease.CredentialID,
			Model:        req.Model,
			LatencyMS:    elapsed.Milliseconds(),
			Source:       usage.SourceDirect,
			Outcome:      upstream.ErrorClass(callErr),
			Error:        callErr.Error(),
		})
		g.logger.Warn("direct call failed",
			"credential_id", lease.CredentialID,
			"model", req.Model,
			"error_class", upstream.ErrorClass(callErr),
			"deferred", out.Kind == KindQueued,
			"error", callErr)
		return out, nil
	}

	g.creds.ReportSuccess(lease.CredentialID)
	payload, _ := json.Marshal(res)
	if g.cache != nil {
		g.cache.Store(text, req.Model, payload, cache.Usage{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		})
	}
	g.record(usage.Record{
		CredentialID: lease.CredentialID,
		Model:        res.Model,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		LatencyMS:    res.LatencyMS,
		Source:       usage.SourceDirect,
		Outcome:      usage.OutcomeSuccess,
	})
	g.logger.Info("request served",
		"credential_id", lease.CredentialID,
		"model", res.Model,
		"latency_ms", res.LatencyMS)
	return g.finish(start, "direct", Outcome{Kind: KindCompleted, Result: res}), nil
}

// Job exposes queue state for the polling endpoint.
func (g *Gateway) Job(id string) (*queue.Job, bool) {
	return g.queue.Get(id)
}

// replay serves a cache hit. A false return means the entry bytes no
// longer decode; the caller falls through to the live path.
func (g *Gateway) replay(entry *cache.Entry, text, model string, start time.Time) (Outcome, bool) {
	var res upstream.Result
	if err := json.Unmarshal(entry.Response, &res); err != nil {
		g.logger.Warn("cached response does not decode, ignoring entry", "key", entry.Key, "error", err)
		return Outcome{}, false
	}
	kind, outcome := "exact", "hit"
	if entry.Key != cache.Fingerprint(text, model) {
		kind, outcome = "semantic", "semantic_hit"
	}
	g.metrics.Increment("cache_hits_total", metrics.Labels{"kind": kind})
	g.record(usage.Record{
		Model:    model,
		Source:   usage.SourceDirect,
		Outcome:  usage.OutcomeSuccess,
		CacheHit: true,
	})
	g.logger.Debug("served from cache", "kind", kind, "model", model)
	return g.finish(start, outcome, Outcome{Kind: KindCompleted, Result: &res, Cached: true}), true
}

// deferRequest moves the request onto the queue with a fresh attempt
// budget, or reports unavailable when the backlog is full. With afterCall
// set the caller already owns the usage record and the log line for this
// admission, so only the backpressure path writes them here.
func (g *Gateway) deferRequest(req upstream.Request, start time.Time, afterCall bool) Outcome {
	jobID, err := g.queue.Enqueue(req, 0)
	if err != nil {
		if !afterCall {
			g.record(usage.Record{
				Model:   req.Model,
				Source:  usage.SourceDirect,
				Outcome: usage.OutcomeUnavailable,
			})
			g.logger.Warn("request rejected, no credential and queue full", "model", req.Model)
		}
		return g.finish(start, "unavailable", Outcome{Kind: KindUnavailable})
	}
	g.metrics.Increment("queue_enqueued_total", nil)
	if !afterCall {
		g.record(usage.Record{
			RequestID: jobID,
			Model:     req.Model,
			Source:    usage.SourceDirect,
			Outcome:   usage.OutcomeQueued,
		})
		g.logger.Info("no credential available, request deferred", "job_id", jobID, "model", req.Model)
	}
	return g.finish(start, "queued", Outcome{Kind: KindQueued, JobID: jobID})
}

// finish stamps the admission counters once per Generate call.
func (g *Gateway) finish(start time.Time, outcome string, out Outcome) Outcome {
	g.metrics.Increment("requests_total", metrics.Labels{"outcome": outcome})
	g.metrics.Observe("request_duration_seconds", g.now().Sub(start).Seconds(), metrics.Labels{"outcome": outcome})
	return out
}

func (g *Gateway) record(rec usage.Record) {
	if g.recorder != nil {
		g.recorder.Record(rec)
	}
}

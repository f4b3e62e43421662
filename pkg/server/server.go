// Package server assembles the HTTP surface: admission and job polling
// under /v1, health probes, the Prometheus scrape endpoint, and the
// key-guarded admin surface, wrapped in the standard middleware chain.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/gateway"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/server/handlers"
	"mercator-hq/ganymede/pkg/server/middleware"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/usage"
	"mercator-hq/ganymede/pkg/worker"
)

// Deps are the subsystems the server exposes. Cache and Recorder may be
// nil when disabled; everything else is required.
type Deps struct {
	Gateway  *gateway.Gateway
	Pool     *credential.Pool
	Cache    *cache.SemanticCache
	Queue    *queue.Queue
	Workers  *worker.Pool
	Recorder *usage.Recorder
	Checker  *health.Checker
	Metrics  *metrics.Registry
}

// Server is the HTTP front of the gateway. It owns the listener and the
// readiness flip: ready turns on once the listener is bound and off
// before connection draining starts.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger *slog.Logger

	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once

	mu        sync.Mutex
	isRunning bool
}

// New creates a server. Start must be called to begin serving.
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
}

// Start binds the listener and serves until ctx is cancelled or the
// listener fails. Graceful shutdown runs with the configured timeout; a
// server stopped once cannot be restarted.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	if s.deps.Checker != nil {
		s.deps.Checker.SetReady(true)
	}
	s.logger.Info("server listening",
		"address", s.Addr(),
		"admin_guarded", s.cfg.ResolveAdminKey() != "")

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.markStopped()
		return err
	}
}

// Shutdown drains in-flight requests within the configured timeout.
// Readiness flips off first so load balancers stop sending traffic while
// existing connections finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if s.deps.Checker != nil {
			s.deps.Checker.SetReady(false)
		}
		s.logger.Info("draining connections", "timeout", s.cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown did not finish cleanly", "error", err)
			shutdownErr = fmt.Errorf("server shutdown: %w", err)
		}
		s.markStopped()
		s.logger.Info("server stopped")
	})
	return shutdownErr
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Addr returns the bound listen address. With a ":0" configuration this
// is the real port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.ListenAddress
	}
	return s.listener.Addr().String()
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
}

// Handler assembles the routes and middleware chain. Exposed so tests
// can drive the full surface without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	generate := handlers.NewGenerateHandler(s.deps.Gateway, s.logger)
	jobs := handlers.NewJobsHandler(s.deps.Gateway)
	admin := handlers.NewAdminHandler(s.deps.Pool, s.deps.Cache, s.deps.Queue, s.deps.Recorder, s.logger)

	mux.Handle("POST /v1/generate", generate)
	mux.Handle("GET /v1/jobs/{id}", jobs)

	if s.deps.Checker != nil {
		mux.Handle("GET /health", s.deps.Checker.Handler())
		mux.Handle("GET /health/live", s.deps.Checker.LivenessHandler())
		mux.Handle("GET /health/ready", s.deps.Checker.ReadinessHandler())
	}
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler(s.refreshGauges))
	}

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("POST /admin/cache/clear", admin.ClearCache)
	adminMux.HandleFunc("POST /admin/queue/clear", admin.ClearQueue)
	adminMux.HandleFunc("GET /admin/queue/dlq", admin.ListDLQ)
	adminMux.HandleFunc("POST /admin/queue/dlq/{id}/retry", admin.RetryDLQ)
	adminMux.HandleFunc("GET /admin/alerts", admin.Alerts)
	adminMux.HandleFunc("GET /admin/credentials", admin.Credentials)
	adminMux.HandleFunc("GET /admin/usage", admin.Usage)
	mux.Handle("/admin/", middleware.AdminAuthMiddleware(s.cfg.ResolveAdminKey())(adminMux))

	var handler http.Handler = mux
	handler = middleware.TimeoutMiddleware(s.cfg.RequestTimeout)(handler)
	handler = middleware.CORSMiddleware(s.cfg.CORS)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)
	return handler
}

// refreshGauges runs before every scrape so structural gauges describe
// the moment of collection.
func (s *Server) refreshGauges() {
	m := s.deps.Metrics

	if s.deps.Pool != nil {
		hs := s.deps.Pool.HealthStatus()
		m.Set("credentials_total", float64(hs.Total), nil)
		m.Set("credentials_healthy", float64(hs.Healthy), nil)
		m.Set("credentials_degraded", float64(hs.Degraded), nil)
		m.Set("credentials_circuit_open", float64(hs.CircuitOpen), nil)

		capacity := s.deps.Pool.Capacity()
		m.Set("capacity_rpm_used", float64(capacity.CurrentRPM), nil)
		m.Set("capacity_rpm_max", float64(capacity.MaxRPM), nil)
		m.Set("capacity_daily_used", float64(capacity.CurrentDaily), nil)
		m.Set("capacity_daily_max", float64(capacity.MaxDaily), nil)
	}

	if s.deps.Cache != nil {
		cs := s.deps.Cache.Cache().Stats()
		m.Set("cache_entries", float64(cs.Entries), nil)
		m.Set("cache_hit_rate", cs.HitRate, nil)
	}

	if s.deps.Queue != nil {
		qs := s.deps.Queue.Stats()
		m.Set("queue_pending", float64(qs.Pending), nil)
		m.Set("queue_processing", float64(qs.Processing), nil)
		m.Set("queue_completed", float64(qs.Completed), nil)
		m.Set("queue_failed", float64(qs.Failed), nil)
		m.Set("queue_wait_seconds_avg", qs.AverageWaitSeconds, nil)
		m.Set("queue_processing_seconds_avg", qs.AverageProcessingSeconds, nil)
	}

	if s.deps.Workers != nil {
		ws := s.deps.Workers.AggregateStats()
		m.Set("workers_active", float64(ws.ActiveWorkers), nil)
		m.Set("worker_throughput", ws.Throughput, nil)
		m.Set("worker_error_rate", ws.ErrorRate, nil)
	}
}

// Package telemetry groups the observability surface of Mercator Ganymede.
//
// # Components
//
//   - logging: structured slog logging with credential redaction
//   - metrics: the Prometheus-backed metrics registry and scrape handler
//   - health: the health aggregator and HTTP probe endpoints
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging)
//	slog.SetDefault(logger)
//
//	reg := metrics.NewRegistry(cfg.Metrics)
//	reg.Increment("requests_total", map[string]string{"outcome": "completed"})
//
//	checker := health.New()
//	health.RegisterStandardChecks(checker, cfg.Health, pool, cache, queue, workers)
//
// Every subsystem reports into the metrics registry by stable series name;
// the registry owns naming (namespace mercator, subsystem ganymede) so
// callers never build fully-qualified metric names themselves.
package telemetry

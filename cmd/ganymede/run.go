package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/gateway"
	"mercator-hq/ganymede/pkg/maintenance"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/upstream"
	"mercator-hq/ganymede/pkg/usage"
	"mercator-hq/ganymede/pkg/usage/storage"
	"mercator-hq/ganymede/pkg/worker"
)

var runFlags struct {
	listenAddress string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede gateway",
	Long: `Start the Ganymede admission gateway with the specified configuration.

The gateway listens on the configured address and admits generation
requests against the credential pool, serving from the response cache
where possible and deferring work to the job queue when no upstream
capacity is available.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  ganymede run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "disable config hot reload")
}

func runGateway(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to set up logging: %v", err))
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Mercator Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Metrics registry
	reg := metrics.NewRegistry(cfg.Metrics)

	// Credential pool
	pool, err := credential.NewPool(cfg.Credentials, cfg.Pool, reg, logger)
	if err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to build credential pool: %v", err))
	}
	fmt.Printf("✓ Credential pool initialized (%d credentials)\n", pool.Size())

	// Response cache (exact + semantic), with optional persistence
	var sc *cache.SemanticCache
	var exact *cache.Cache
	if cfg.Cache.Enabled {
		exact = cache.New(cfg.Cache, logger)
		if cfg.Cache.PersistPath != "" {
			store, err := cache.OpenStore(cfg.Cache.PersistPath)
			if err != nil {
				logger.Warn("cache persistence unavailable, running memory-only",
					"path", cfg.Cache.PersistPath, "error", err)
			} else if err := exact.SetStore(store); err != nil {
				logger.Warn("cache store load failed, running memory-only", "error", err)
				store.Close()
			}
		}
		defer exact.Close()

		var embedder cache.Embedder
		if cfg.Cache.Semantic.Enabled {
			embedder = cache.NewLocalEmbedder(cfg.Cache.Semantic.Dimensions)
		}
		sc = cache.NewSemanticCache(exact, embedder, cfg.Cache.Semantic, logger)
		fmt.Printf("✓ Response cache initialized (%d entries loaded, semantic=%v)\n",
			exact.Len(), cfg.Cache.Semantic.Enabled)
	}

	// Job queue
	q := queue.New(cfg.Queue, logger)
	fmt.Printf("✓ Job queue initialized (capacity %d)\n", cfg.Queue.MaxPending)

	// Usage recorder
	var rec *usage.Recorder
	if cfg.Usage.Enabled {
		var usageStore usage.Storage
		switch cfg.Usage.Backend {
		case "sqlite":
			s, err := storage.NewSQLite(cfg.Usage.DBPath, logger)
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("failed to open usage database: %w", err))
			}
			defer s.Close()
			usageStore = s
		case "memory":
			usageStore = storage.NewMemory()
		default:
			return cli.NewConfigError(cfgFile, fmt.Sprintf("unsupported usage backend: %s", cfg.Usage.Backend))
		}
		rec = usage.NewRecorder(cfg.Usage, usageStore, logger)
		defer rec.Close()
		fmt.Printf("✓ Usage recorder initialized (%s)\n", cfg.Usage.Backend)
	}

	// Upstream client, gateway, workers
	client := upstream.NewClient(cfg.Upstream, logger)
	gw := gateway.New(pool, sc, q, client, rec, reg, logger)

	workers := worker.New(cfg.Workers, q, pool, sc, client, rec, reg, logger)
	workers.Start(cfg.Workers.Concurrency)
	fmt.Printf("✓ Worker pool started (%d workers)\n", cfg.Workers.Concurrency)

	// Health checks
	checker := health.New()
	health.RegisterStandardChecks(checker, cfg.Health, pool, sc, q, workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Maintenance janitor
	janitor := maintenance.New(cfg.Maintenance, cfg.Queue.CompletedRetention, exact, q, rec, logger)
	if err := janitor.Start(ctx); err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to start maintenance: %v", err))
	}
	defer janitor.Stop()

	// Config hot reload: only the credential limits/disabled flags are
	// safe to apply in place; everything else needs a restart.
	var watcher *config.Watcher
	if !runFlags.noWatch {
		watcher = config.NewWatcher(cfgFile, logger)
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				if err := pool.UpdateCredentials(next.Credentials); err != nil {
					logger.Warn("credential reload rejected", "error", err)
					return
				}
				config.SetConfig(next)
				logger.Info("configuration reloaded", "credentials", len(next.Credentials))
			})
			if err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// HTTP server
	srv := server.New(cfg.Server, server.Deps{
		Gateway:  gw,
		Pool:     pool,
		Cache:    sc,
		Queue:    q,
		Workers:  workers,
		Recorder: rec,
		Checker:  checker,
		Metrics:  reg,
	}, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Give the listener a moment to bind so the banner shows the real port.
	waitForReady(checker, 5*time.Second)

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", srv.Addr())
	fmt.Printf("✓ Health endpoint: http://%s/health\n", srv.Addr())
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", srv.Addr())
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
	}

	// Shutdown order: stop accepting, stop workers (bounded), then the
	// deferred janitor/watcher/recorder/store teardown runs on return.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	if err := workers.Stop(); err != nil {
		logger.Warn("worker pool did not drain cleanly", "error", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

// waitForReady polls the readiness flip so the startup banner prints the
// bound address rather than the configured one.
func waitForReady(checker *health.Checker, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if checker.Ready() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Package maintenance runs scheduled background upkeep: expired cache
// entries are swept, completed jobs are pruned once their retention
// window passes, and usage records are trimmed to the configured
// retention. The dead-letter set is never touched; those jobs leave only
// through administrative retry or purge.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/usage"
)

// Janitor owns the cron schedule for the three upkeep tasks. Any nil
// collaborator simply leaves its task unscheduled.
type Janitor struct {
	cfg                config.MaintenanceConfig
	completedRetention time.Duration
	cache              *cache.Cache
	queue              *queue.Queue
	recorder           *usage.Recorder
	logger             *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a janitor. completedRetention is how long completed jobs
// stay queryable before the queue-prune task removes them.
func New(cfg config.MaintenanceConfig, completedRetention time.Duration, c *cache.Cache, q *queue.Queue, recorder *usage.Recorder, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cfg:                cfg,
		completedRetention: completedRetention,
		cache:              c,
		queue:              q,
		recorder:           recorder,
		logger:             logger.With("component", "maintenance"),
	}
}

// Start schedules the configured tasks and begins running them. An empty
// schedule disables its task; with nothing to schedule the janitor stays
// stopped. Starting a running janitor is a no-op; the janitor stops
// itself when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	// A fresh cron per start keeps Stop/Start cycles from accumulating
	// duplicate entries.
	j.cron = cron.New()

	tasks := []struct {
		name     string
		schedule string
		run      func()
		skip     bool
	}{
		{"cache_sweep", j.cfg.CacheSweepSchedule, j.sweepCache, j.cache == nil},
		{"queue_prune", j.cfg.QueuePruneSchedule, j.pruneQueue, j.queue == nil},
		{"usage_prune", j.cfg.UsagePruneSchedule, j.pruneUsage, j.recorder == nil},
	}
	scheduled := 0
	for _, task := range tasks {
		if task.skip || task.schedule == "" {
			continue
		}
		if _, err := j.cron.AddFunc(task.schedule, task.run); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", task.name, task.schedule, err)
		}
		scheduled++
	}
	if scheduled == 0 {
		j.logger.Info("no maintenance tasks scheduled, janitor idle")
		return nil
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("maintenance janitor started",
		"tasks", scheduled,
		"cache_sweep", j.cfg.CacheSweepSchedule,
		"queue_prune", j.cfg.QueuePruneSchedule,
		"usage_prune", j.cfg.UsagePruneSchedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for any running task to finish.
// Stopping a stopped janitor is a no-op.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info("maintenance janitor stopped")
}

// Running reports whether the janitor is scheduling tasks.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// NextRun returns when the next task fires, or zero if the janitor is
// not running.
func (j *Janitor) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return time.Time{}
	}

	var next time.Time
	for _, entry := range j.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

func (j *Janitor) sweepCache() {
	if removed := j.cache.Sweep(); removed > 0 {
		j.logger.Info("expired cache entries swept", "removed", removed)
	} else {
		j.logger.Debug("cache sweep found nothing to remove")
	}
}

func (j *Janitor) pruneQueue() {
	if removed := j.queue.PruneCompleted(j.completedRetention); removed > 0 {
		j.logger.Info("completed jobs pruned", "removed", removed, "retention", j.completedRetention)
	} else {
		j.logger.Debug("queue prune found nothing to remove")
	}
}

func (j *Janitor) pruneUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := j.recorder.Prune(ctx)
	if err != nil {
		j.logger.Error("usage retention pruning failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("usage records pruned", "removed", removed)
	} else {
		j.logger.Debug("usage prune found nothing to remove")
	}
}

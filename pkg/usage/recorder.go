package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/config"
)

const writeTimeout = 5 * time.Second

// Recorder buffers usage records on a channel and writes them to storage
// from a background goroutine. Record never blocks: when the buffer is
// full the record is dropped and counted, because slowing the request
// path to preserve accounting rows is the wrong trade.
type Recorder struct {
	storage       Storage
	enabled       bool
	retentionDays int
	logger        *slog.Logger

	ch      chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
	now     func() time.Time
}

// NewRecorder starts the background writer. With cfg.Enabled false the
// recorder is inert: Record drops everything silently and Close is a
// no-op on the goroutine side.
func NewRecorder(cfg config.UsageConfig, storage Storage, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1000
	}

	r := &Recorder{
		storage:       storage,
		enabled:       cfg.Enabled && storage != nil,
		retentionDays: cfg.RetentionDays,
		logger:        logger.With("component", "usage"),
		ch:            make(chan Record, buffer),
		done:          make(chan struct{}),
		now:           time.Now,
	}

	if r.enabled {
		r.wg.Add(1)
		go r.writer()
		r.logger.Info("usage recorder started", "buffer", buffer, "retention_days", cfg.RetentionDays)
	}
	return r
}

// Record enqueues one usage row. Missing id and time are filled in here so
// callers only provide what they know.
func (r *Recorder) Record(rec Record) {
	if !r.enabled {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = r.now()
	}

	select {
	case r.ch <- rec:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("usage buffer full, dropping records", "dropped_total", r.dropped.Load())
		}
	}
}

// Dropped reports how many records were lost to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Query passes through to storage, newest records first.
func (r *Recorder) Query(ctx context.Context, q Query) ([]Record, error) {
	if !r.enabled {
		return nil, nil
	}
	return r.storage.Query(ctx, q)
}

// Summarize aggregates records at or after since.
func (r *Recorder) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	if !r.enabled {
		return Summary{}, nil
	}
	return r.storage.Summarize(ctx, since)
}

// Prune enforces the retention window and reports how many records were
// removed. A non-positive retention keeps records forever.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	if !r.enabled || r.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := r.now().AddDate(0, 0, -r.retentionDays)
	return r.storage.DeleteBefore(ctx, cutoff)
}

// Close drains the buffer, stops the writer, and closes storage.
func (r *Recorder) Close() error {
	if !r.enabled {
		return nil
	}
	close(r.done)
	r.wg.Wait()
	return r.storage.Close()
}

// writer drains the channel until Close, then empties what is left.
func (r *Recorder) writer() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.ch:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.ch:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, rec); err != nil {
		r.logger.Error("usage record write failed",
			"record_id", rec.ID,
			"credential_id", rec.CredentialID,
			"error", err)
	}
}

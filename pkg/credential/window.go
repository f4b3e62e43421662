package credential

import (
	"sync"
	"time"
)

// UsageWindow counts admissions over a rolling time period.
//
// The window is a fixed ring of time buckets: one slot per bucketSize slice
// of the window. Adding reserves into the bucket for the current time;
// summing prunes buckets older than the window first, so counts roll off
// continuously instead of resetting on a boundary. A one-minute window with
// one-second buckets uses 60 slots.
type UsageWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []usageBucket
	head       int
	now        func() time.Time
	mu         sync.Mutex
}

type usageBucket struct {
	timestamp time.Time
	count     int64
}

// NewUsageWindow creates a rolling counter covering window at bucketSize
// granularity.
func NewUsageWindow(window, bucketSize time.Duration) *UsageWindow {
	numBuckets := int(window / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &UsageWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]usageBucket, numBuckets),
		now:        time.Now,
	}
}

// NewMinuteWindow returns a rolling-minute counter at second granularity.
func NewMinuteWindow() *UsageWindow {
	return NewUsageWindow(time.Minute, time.Second)
}

// NewDayWindow returns a rolling-day counter at hour granularity.
func NewDayWindow() *UsageWindow {
	return NewUsageWindow(24*time.Hour, time.Hour)
}

// Add records n admissions in the current time bucket.
func (w *UsageWindow) Add(n int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)
	w.bucketForLocked(now).count += n
}

// Sum returns the total count across the window, pruning expired buckets.
func (w *UsageWindow) Sum() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())

	var sum int64
	for i := range w.buckets {
		if !w.buckets[i].timestamp.IsZero() {
			sum += w.buckets[i].count
		}
	}
	return sum
}

// Reset clears the window.
func (w *UsageWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.buckets {
		w.buckets[i] = usageBucket{}
	}
	w.head = 0
}

func (w *UsageWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	for i := range w.buckets {
		if !w.buckets[i].timestamp.IsZero() && w.buckets[i].timestamp.Before(cutoff) {
			w.buckets[i] = usageBucket{}
		}
	}
}

// bucketForLocked returns the bucket covering now, claiming an empty slot
// or recycling the oldest one when the ring has no slot for the current
// bucket boundary yet.
func (w *UsageWindow) bucketForLocked(now time.Time) *usageBucket {
	boundary := now.Truncate(w.bucketSize)

	if w.buckets[w.head].timestamp.Equal(boundary) {
		return &w.buckets[w.head]
	}
	for i := range w.buckets {
		if w.buckets[i].timestamp.Equal(boundary) {
			return &w.buckets[i]
		}
	}

	target := -1
	for i := range w.buckets {
		if w.buckets[i].timestamp.IsZero() {
			target = i
			break
		}
	}
	if target == -1 {
		oldest := 0
		for i := 1; i < len(w.buckets); i++ {
			if w.buckets[i].timestamp.Before(w.buckets[oldest].timestamp) {
				oldest = i
			}
		}
		target = oldest
	}

	w.buckets[target] = usageBucket{timestamp: boundary}
	w.head = target
	return &w.buckets[target]
}

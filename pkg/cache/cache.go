package cache

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// Entry is one cached response. Get returns copies; the Response bytes are
// shared and must be treated as read-only.
type Entry struct {
	Key        string    `json:"key"`
	Model      string    `json:"model"`
	Response   []byte    `json:"response"`
	Usage      Usage     `json:"usage"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Hits       int64     `json:"hits"`
}

// Usage is the token cost of the cached response, replayed to callers on a
// hit so cached requests still report what the original call consumed.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Stats summarizes cache effectiveness. Hits and Misses are lifetime
// counters: their sum equals the number of lookups ever made, and neither
// resets on Clear.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

// EntryStore persists cache entries across restarts. Implementations must
// be safe for concurrent use.
type EntryStore interface {
	LoadAll() ([]Entry, error)
	Put(e Entry) error
	Delete(key string) error
	DeleteAll() error
	Close() error
}

// Cache is the exact-match response cache: capacity-bounded with
// least-recently-accessed eviction, per-entry TTL, and lifetime hit/miss
// accounting. Expired entries are treated as absent on lookup and removed
// in bulk by Sweep, which the maintenance janitor drives on a schedule.
type Cache struct {
	maxEntries int
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	mu      sync.Mutex
	entries map[string]*Entry
	store   EntryStore
}

// New creates an empty in-memory cache.
func New(cfg config.CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		logger:     logger.With("component", "cache"),
		now:        time.Now,
		entries:    make(map[string]*Entry),
	}
}

// SetStore attaches a persistence backend: surviving entries are loaded
// immediately and every later mutation is written through. Load failures
// leave the cache memory-only.
func (c *Cache) SetStore(s EntryStore) error {
	entries, err := s.LoadAll()
	if err != nil {
		return err
	}

	now := c.now()
	loaded := 0
	c.mu.Lock()
	for i := range entries {
		e := entries[i]
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			continue
		}
		c.entries[e.Key] = &e
		loaded++
	}
	var evicted []string
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		if key, ok := c.evictLocked(); ok {
			evicted = append(evicted, key)
		} else {
			break
		}
	}
	c.store = s
	c.mu.Unlock()

	for _, key := range evicted {
		c.storeDelete(key)
	}
	c.logger.Info("cache store attached", "loaded", loaded)
	return nil
}

// Get returns a copy of the entry under key, counting a hit or a miss. A
// hit refreshes the entry's access time and hit counter.
func (c *Cache) Get(key string) (*Entry, bool) {
	if e, ok := c.getEntry(key); ok {
		c.hits.Add(1)
		return e, true
	}
	c.misses.Add(1)
	return nil, false
}

// getEntry is the uncounted lookup shared with the semantic layer: it
// touches the entry but leaves hit/miss accounting to the caller so one
// logical lookup increments exactly one counter.
func (c *Cache) getEntry(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt) {
		return nil, false
	}

	e.LastAccess = c.now()
	e.Hits++
	out := *e
	return &out, true
}

// Set stores a response under key, evicting the least-recently-accessed
// entry when the cache is full.
func (c *Cache) Set(key, model string, response []byte, usage Usage) {
	now := c.now()
	e := &Entry{
		Key:        key,
		Model:      model,
		Response:   response,
		Usage:      usage,
		CreatedAt:  now,
		LastAccess: now,
	}
	if c.ttl > 0 {
		e.ExpiresAt = now.Add(c.ttl)
	}

	var evictedKey string
	var evicted bool
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		evictedKey, evicted = c.evictLocked()
	}
	c.entries[key] = e
	stored := *e
	c.mu.Unlock()

	if evicted {
		c.storeDelete(evictedKey)
	}
	c.storePut(stored)
}

// Stats reports lifetime hit/miss counters and the current entry count.
// The hit rate is zero, not NaN, before the first lookup.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	s := Stats{Hits: hits, Misses: misses, Entries: c.Len()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// TopEntries returns copies of the n most-hit entries, most hits first,
// ties broken by most recent access.
func (c *Cache) TopEntries(n int) []Entry {
	if n <= 0 {
		return nil
	}

	c.mu.Lock()
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Hits != entries[j].Hits {
			return entries[i].Hits > entries[j].Hits
		}
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Len returns the current entry count, expired entries included until the
// next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	var expired []string
	for key, e := range c.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	for _, key := range expired {
		c.storeDelete(key)
	}
	return len(expired)
}

// Clear drops every entry. Lifetime hit/miss counters are preserved:
// clearing changes what is cached, not the cache's history.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteAll(); err != nil {
			c.logger.Warn("cache store clear failed", "error", err)
		}
	}
}

// Close releases the persistence backend, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	s := c.store
	c.store = nil
	c.mu.Unlock()

	if s != nil {
		return s.Close()
	}
	return nil
}

// evictLocked removes the least-recently-accessed entry, ties broken by
// oldest creation, and returns its key.
func (c *Cache) evictLocked() (string, bool) {
	var victim string
	var victimEntry *Entry
	for key, e := range c.entries {
		if victimEntry == nil ||
			e.LastAccess.Before(victimEntry.LastAccess) ||
			(e.LastAccess.Equal(victimEntry.LastAccess) && e.CreatedAt.Before(victimEntry.CreatedAt)) {
			victim = key
			victimEntry = e
		}
	}
	if victimEntry == nil {
		return "", false
	}
	delete(c.entries, victim)
	return victim, true
}

func (c *Cache) storePut(e Entry) {
	c.mu.Lock()
	s := c.store
	c.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Put(e); err != nil {
		c.logger.Warn("cache store write failed", "key", e.Key, "error", err)
	}
}

func (c *Cache) storeDelete(key string) {
	c.mu.Lock()
	s := c.store
	c.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Delete(key); err != nil {
		c.logger.Warn("cache store delete failed", "key", key, "error", err)
	}
}

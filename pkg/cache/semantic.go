package cache

import (
	"log/slog"
	"sync"

	"mercator-hq/ganymede/pkg/config"
)

// SemanticCache layers similarity matching over the exact cache: a lookup
// that misses on the exact key is compared against a bounded window of
// recently stored prompts, and a close-enough neighbor for the same model
// counts as a hit. This trades a small risk of serving a slightly
// mismatched answer for a much higher hit rate on paraphrased prompts.
//
// Embedder failures never fail a lookup; they degrade the cache to
// exact-only matching.
type SemanticCache struct {
	cache     *Cache
	embedder  Embedder
	enabled   bool
	threshold float64
	window    int
	logger    *slog.Logger

	mu     sync.Mutex
	recent []vectorEntry
}

type vectorEntry struct {
	key    string
	model  string
	vector []float32
}

// NewSemanticCache wraps the exact cache with similarity matching. With
// cfg.Enabled false, lookups and stores pass straight through to the exact
// cache and the similarity window stays empty.
func NewSemanticCache(c *Cache, embedder Embedder, cfg config.SemanticConfig, logger *slog.Logger) *SemanticCache {
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.Window
	if window <= 0 {
		window = 1
	}
	return &SemanticCache{
		cache:     c,
		embedder:  embedder,
		enabled:   cfg.Enabled && embedder != nil,
		threshold: cfg.Threshold,
		window:    window,
		logger:    logger.With("component", "semantic_cache"),
	}
}

// Lookup finds a cached response for the prompt: exact key first, then the
// closest recent neighbor at or above the similarity threshold. Exactly
// one hit or miss is counted per call.
func (s *SemanticCache) Lookup(text, model string) (*Entry, bool) {
	key := Fingerprint(text, model)
	if e, ok := s.cache.getEntry(key); ok {
		s.cache.hits.Add(1)
		return e, true
	}

	if s.enabled {
		if matched, ok := s.nearest(text, model); ok {
			if e, ok := s.cache.getEntry(matched); ok {
				s.cache.hits.Add(1)
				return e, true
			}
		}
	}

	s.cache.misses.Add(1)
	return nil, false
}

// Store caches the response under the prompt's exact key and remembers its
// vector for future similarity lookups.
func (s *SemanticCache) Store(text, model string, response []byte, usage Usage) {
	key := Fingerprint(text, model)
	s.cache.Set(key, model, response, usage)

	if !s.enabled {
		return
	}
	vec, err := s.embedder.Embed(text)
	if err != nil {
		s.logger.Debug("embedding failed, entry is exact-match only", "error", err)
		return
	}
	s.remember(key, model, vec)
}

// Cache exposes the underlying exact cache for stats, sweeping, and
// administrative operations.
func (s *SemanticCache) Cache() *Cache {
	return s.cache
}

// Clear drops all entries and the similarity window. Lifetime counters
// survive, as with the exact cache.
func (s *SemanticCache) Clear() {
	s.mu.Lock()
	s.recent = nil
	s.mu.Unlock()
	s.cache.Clear()
}

// nearest returns the key of the most similar recently stored prompt for
// the model, if its similarity clears the threshold.
func (s *SemanticCache) nearest(text, model string) (string, bool) {
	vec, err := s.embedder.Embed(text)
	if err != nil {
		s.logger.Debug("embedding failed, lookup is exact-match only", "error", err)
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bestKey := ""
	bestScore := 0.0
	for i := range s.recent {
		if s.recent[i].model != model {
			continue
		}
		if score := cosine(vec, s.recent[i].vector); score > bestScore {
			bestKey = s.recent[i].key
			bestScore = score
		}
	}
	if bestKey == "" || bestScore < s.threshold {
		return "", false
	}
	return bestKey, true
}

// remember appends to the similarity window, dropping the oldest vector
// past capacity. Re-stored keys are refreshed in place.
func (s *SemanticCache) remember(key, model string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recent {
		if s.recent[i].key == key {
			s.recent[i].vector = vec
			s.recent[i].model = model
			return
		}
	}

	s.recent = append(s.recent, vectorEntry{key: key, model: model, vector: vec})
	if len(s.recent) > s.window {
		s.recent = s.recent[len(s.recent)-s.window:]
	}
}

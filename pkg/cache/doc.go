// Package cache stores upstream responses keyed by a deterministic
// fingerprint of the normalized prompt and model.
//
// The exact Cache is capacity-bounded with least-recently-accessed
// eviction and per-entry TTL. SemanticCache layers similarity matching
// over it: a miss on the exact key is compared against a bounded window of
// recently stored prompt vectors and a close-enough neighbor counts as a
// hit, which recovers paraphrased requests at the cost of a small
// mismatch risk.
//
// Lifetime hit and miss counters always sum to the number of lookups and
// survive Clear. An optional SQLite-backed Store write-through keeps the
// cache warm across restarts; persistence failures log and degrade to
// memory-only operation.
package cache

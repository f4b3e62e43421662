package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	response BLOB NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_access INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	hits INTEGER NOT NULL
);
`

// Store persists cache entries in a SQLite file so a warm cache survives
// restarts. Timestamps are stored as Unix nanoseconds; zero means no
// expiry.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the cache database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadAll reads every persisted entry.
func (s *Store) LoadAll() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, model, response, input_tokens, output_tokens,
		created_at, last_access, expires_at, hits FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt, lastAccess, expiresAt int64
		if err := rows.Scan(&e.Key, &e.Model, &e.Response, &e.Usage.InputTokens,
			&e.Usage.OutputTokens, &createdAt, &lastAccess, &expiresAt, &e.Hits); err != nil {
			return nil, fmt.Errorf("cache load: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		e.LastAccess = time.Unix(0, lastAccess)
		if expiresAt != 0 {
			e.ExpiresAt = time.Unix(0, expiresAt)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}
	return entries, nil
}

// Put writes one entry, replacing any previous row under the same key.
func (s *Store) Put(e Entry) error {
	var expiresAt int64
	if !e.ExpiresAt.IsZero() {
		expiresAt = e.ExpiresAt.UnixNano()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache_entries
		(key, model, response, input_tokens, output_tokens, created_at, last_access, expires_at, hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Model, e.Response, e.Usage.InputTokens, e.Usage.OutputTokens,
		e.CreatedAt.UnixNano(), e.LastAccess.UnixNano(), expiresAt, e.Hits)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeleteAll removes every entry.
func (s *Store) DeleteAll() error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

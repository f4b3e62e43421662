package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/ganymede/pkg/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id            TEXT PRIMARY KEY,
	recorded_at   INTEGER NOT NULL,
	request_id    TEXT NOT NULL DEFAULT '',
	credential_id TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	source        TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	cache_hit     INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_usage_recorded_at ON usage_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_usage_credential ON usage_records(credential_id);
CREATE INDEX IF NOT EXISTS idx_usage_model ON usage_records(model);
`

// SQLite persists usage records in a single-file database. Timestamps are
// stored as unix nanoseconds so they round-trip exactly.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens or creates the database at path, enables WAL mode, and
// installs the schema.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}

	s := &SQLite{db: db, logger: logger.With("component", "usage.sqlite")}
	s.logger.Info("usage storage opened", "path", path)
	return s, nil
}

// Store persists one record.
func (s *SQLite) Store(ctx context.Context, rec usage.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, recorded_at, request_id, credential_id, model, input_tokens, output_tokens, latency_ms, source, outcome, cache_hit, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UnixNano(), rec.RequestID, rec.CredentialID, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.LatencyMS, rec.Source, rec.Outcome, rec.CacheHit, rec.Error)
	if err != nil {
		return fmt.Errorf("store usage record: %w", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *SQLite) Query(ctx context.Context, q usage.Query) ([]usage.Record, error) {
	query := `SELECT id, recorded_at, request_id, credential_id, model, input_tokens, output_tokens, latency_ms, source, outcome, cache_hit, error
		FROM usage_records WHERE 1=1`
	var args []any

	if !q.Since.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		query += " AND recorded_at <= ?"
		args = append(args, q.Until.UnixNano())
	}
	if q.CredentialID != "" {
		query += " AND credential_id = ?"
		args = append(args, q.CredentialID)
	}
	if q.Model != "" {
		query += " AND model = ?"
		args = append(args, q.Model)
	}
	query += " ORDER BY recorded_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []usage.Record
	for rows.Next() {
		var rec usage.Record
		var recordedAt int64
		if err := rows.Scan(&rec.ID, &recordedAt, &rec.RequestID, &rec.CredentialID, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.LatencyMS, &rec.Source, &rec.Outcome, &rec.CacheHit, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.Time = time.Unix(0, recordedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summarize aggregates records at or after since: overall totals plus
// per-model and per-credential breakdowns.
func (s *SQLite) Summarize(ctx context.Context, since time.Time) (usage.Summary, error) {
	summary := usage.Summary{
		ByModel:      make(map[string]usage.Totals),
		ByCredential: make(map[string]usage.Totals),
	}
	cutoff := since.UnixNano()

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(AVG(CASE WHEN latency_ms > 0 THEN latency_ms END), 0)
		 FROM usage_records WHERE recorded_at >= ?`, cutoff)
	if err := row.Scan(&summary.Calls, &summary.Successes, &summary.CacheHits,
		&summary.InputTokens, &summary.OutputTokens, &summary.AvgLatencyMS); err != nil {
		return summary, fmt.Errorf("summarize usage: %w", err)
	}

	if err := s.groupTotals(ctx, "model", cutoff, summary.ByModel); err != nil {
		return summary, err
	}
	if err := s.groupTotals(ctx, "credential_id", cutoff, summary.ByCredential); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *SQLite) groupTotals(ctx context.Context, column string, cutoff int64, into map[string]usage.Totals) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0)
		 FROM usage_records WHERE recorded_at >= ? AND %s != '' GROUP BY %s`, column, column, column), cutoff)
	if err != nil {
		return fmt.Errorf("summarize usage by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var t usage.Totals
		if err := rows.Scan(&key, &t.Calls, &t.Successes, &t.CacheHits, &t.InputTokens, &t.OutputTokens); err != nil {
			return fmt.Errorf("scan usage totals: %w", err)
		}
		into[key] = t
	}
	return rows.Err()
}

// DeleteBefore removes records older than cutoff.
func (s *SQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM usage_records WHERE recorded_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

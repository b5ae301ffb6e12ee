// Package errstore persists job failure records for jobs that carry no
// notification channel.
package errstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one persisted failure report, keyed by the job's correlation id.
type Record struct {
	JobID     string    `json:"job_id"`
	Messages  []string  `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore stores failure records in SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the store at the given path.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_errors_job_id ON job_errors(job_id);
	CREATE INDEX IF NOT EXISTS idx_job_errors_created_at ON job_errors(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordError persists the failure messages for a job.
func (s *SQLiteStore) RecordError(ctx context.Context, jobID string, messages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO job_errors (job_id, messages, created_at) VALUES (?, ?, ?)",
		jobID, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

// Get returns the records for a job, newest first.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, messages, created_at FROM job_errors WHERE job_id = ? ORDER BY created_at DESC, id DESC",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query error records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			payload []byte
			created int64
		)
		if err := rows.Scan(&rec.JobID, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

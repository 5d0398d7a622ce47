// Package audittrail persists a durable record of every entry that
// reaches a terminal status (fulfilled, rejected or timed out), as a
// supplement to the in-memory ledger. It never participates in in-flight
// request resolution; a record is written only once the outcome is known.
package audittrail

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status is the terminal outcome an audit Record reports. It is a
// superset of entry.Status: a send that never received a reply before
// entry_timeout elapsed is recorded as StatusTimedOut even though no
// such status exists on the wire entry itself.
type Status string

const (
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
	StatusTimedOut  Status = "timed_out"
)

// Record describes one terminal entry's outcome.
type Record struct {
	ID               string    `json:"id"`
	SourceGroup      string    `json:"source_group"`
	DestinationGroup string    `json:"destination_group"`
	InstanceID       string    `json:"instance_id"`
	Status           Status    `json:"status"`
	PublishedAt      time.Time `json:"published_at"`
	ResolvedAt       time.Time `json:"resolved_at"`
}

// Store persists Records to a JSONL file and, when a database is
// configured, to the entry_audit table. File logging is unconditional
// and considered the primary trail; the database is a queryable
// supplement that failures here never block on.
type Store struct {
	mu   sync.Mutex
	file io.Writer
	db   *sql.DB
}

// Config configures a Store.
type Config struct {
	// FilePath is the JSONL audit log path. Required.
	FilePath string
	// DatabasePath is the sqlite file backing the entry_audit table. If
	// empty, database persistence is skipped.
	DatabasePath string
}

// NewStore opens the file (and, if configured, the sqlite database and
// its migrations) backing a Store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("audittrail: file path cannot be empty")
	}
	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audittrail: failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audittrail: failed to open log file: %w", err)
	}

	s := &Store{file: f}

	if cfg.DatabasePath != "" {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("audittrail: failed to create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite3", cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("audittrail: failed to open database: %w", err)
		}
		if err := NewMigrationRunner(db).Up(); err != nil {
			return nil, err
		}
		s.db = db
	}

	return s, nil
}

// NewNullStore returns a Store that discards every Record, for
// deployments that run with the audit trail disabled.
func NewNullStore() *Store {
	return &Store{file: io.Discard}
}

// Record appends rec to the JSONL file and, if a database is
// configured, upserts it into entry_audit. A database failure is
// logged to the caller via the returned error but the file write
// already happened and is not rolled back; the file remains the
// authoritative trail.
func (s *Store) Record(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audittrail: failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("audittrail: failed to write record: %w", err)
	}

	if s.db == nil {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entry_audit (id, source_group, destination_group, instance_id, status, published_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, resolved_at = excluded.resolved_at
	`, rec.ID, rec.SourceGroup, rec.DestinationGroup, rec.InstanceID, string(rec.Status), rec.PublishedAt, rec.ResolvedAt)
	if err != nil {
		return fmt.Errorf("audittrail: failed to record to database: %w", err)
	}
	return nil
}

// Close releases the file and database handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if closer, ok := s.file.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

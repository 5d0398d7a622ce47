package audittrail

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationRunner applies goose migrations against the audit trail's
// sqlite database.
type MigrationRunner struct {
	db *sql.DB
}

// NewMigrationRunner builds a MigrationRunner bound to db.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Up applies every pending migration.
func (m *MigrationRunner) Up() error {
	if m.db == nil {
		return fmt.Errorf("audittrail: database connection is nil")
	}
	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("audittrail: failed to set goose dialect: %w", err)
	}
	if err := goose.Up(m.db, "migrations"); err != nil {
		return fmt.Errorf("audittrail: failed to apply migrations: %w", err)
	}
	return nil
}

// Version returns the current schema version, 0 if no migrations have
// been applied.
func (m *MigrationRunner) Version() (int64, error) {
	if m.db == nil {
		return 0, fmt.Errorf("audittrail: database connection is nil")
	}
	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("audittrail: failed to set goose dialect: %w", err)
	}
	return goose.GetDBVersion(m.db)
}

package migration

import (
	"context"
	"fmt"

	"goprep/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles the submission ledger schema
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order. Every step is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSubmissionsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create preprocess_submissions table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

// timestampType picks the column type for timestamps on the connected dialect
func timestampType(db *sqlx.DB) string {
	if db.DriverName() == "postgres" {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

func (r *MigrationRunner) createSubmissionsTable(ctx context.Context, db *sqlx.DB) error {
	ts := timestampType(db)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS preprocess_submissions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			dataset_ids TEXT NOT NULL,
			result TEXT,
			error_message TEXT,
			started_at %s NOT NULL,
			completed_at %s
		)
	`, ts, ts)
	_, err := db.ExecContext(ctx, query)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_preprocess_submissions_started_at ON preprocess_submissions (started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_preprocess_submissions_status ON preprocess_submissions (status)`,
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

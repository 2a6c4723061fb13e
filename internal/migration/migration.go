package migration

import (
	"context"

	"distreg/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run archive schema. The DDL sticks to types
// both SQLite and PostgreSQL accept so one runner serves either driver.
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

// Run executes all migrations in order; every statement is idempotent
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		fn   func(context.Context, *sqlx.DB) error
	}{
		{"runs", r.createRunsTable},
		{"run_inputs", r.createRunInputsTable},
		{"model_fits", r.createModelFitsTable},
		{"coefficients", r.createCoefficientsTable},
		{"vifs", r.createVIFsTable},
		{"indexes", r.createIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx, db); err != nil {
			return errors.Wrapf(errors.WithCode(errors.CodeArchiveError, err), "failed to create %s", step.name)
		}
	}
	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(64) PRIMARY KEY,
			study VARCHAR(255) NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			config_hash VARCHAR(64) NOT NULL,
			code_version VARCHAR(64) NOT NULL,
			models INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			created_at VARCHAR(64) NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createRunInputsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_inputs (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			content_hash VARCHAR(64) NOT NULL,
			PRIMARY KEY (run_id, name)
		)
	`)
	return err
}

func (r *MigrationRunner) createModelFitsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS model_fits (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			model VARCHAR(255) NOT NULL,
			formula TEXT NOT NULL,
			r_squared DOUBLE PRECISION,
			adj_r_squared DOUBLE PRECISION,
			n_obs INTEGER,
			error_message TEXT,
			PRIMARY KEY (run_id, model)
		)
	`)
	return err
}

func (r *MigrationRunner) createCoefficientsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS coefficients (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			model VARCHAR(255) NOT NULL,
			position INTEGER NOT NULL,
			term VARCHAR(255) NOT NULL,
			estimate DOUBLE PRECISION,
			std_error DOUBLE PRECISION,
			t_value DOUBLE PRECISION,
			p_value DOUBLE PRECISION,
			PRIMARY KEY (run_id, model, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createVIFsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vifs (
			run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			model VARCHAR(255) NOT NULL,
			variable VARCHAR(255) NOT NULL,
			vif DOUBLE PRECISION,
			unbounded BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (run_id, model, variable)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_study ON runs(study, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

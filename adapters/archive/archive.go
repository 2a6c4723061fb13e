// Package archive stores run manifests and fitted models in a SQL database
// (SQLite or PostgreSQL) so results can be compared across data vintages.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"distreg/domain/core"
	"distreg/domain/stats"
	"distreg/internal/errors"
	"distreg/internal/migration"
	"distreg/ports"

	"github.com/jmoiron/sqlx"
)

// Driver names as registered by modernc.org/sqlite and github.com/lib/pq
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the archive database and applies the schema. The caller
// must blank-import the driver package.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported archive driver %q", driver))
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.ArchiveError("failed to connect to archive", err)
	}
	if driver == DriverSQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, errors.ArchiveError("failed to enable foreign keys", err)
		}
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// runArchive implements the RunArchive interface
type runArchive struct {
	db *sqlx.DB
}

// NewRunArchive creates a new run archive on an opened database
func NewRunArchive(db *sqlx.DB) ports.RunArchive {
	return &runArchive{db: db}
}

// SaveRun writes the manifest and every model outcome in one transaction
func (a *runArchive) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	m := rec.Manifest
	if m == nil {
		return errors.InvalidInput("run record has no manifest")
	}
	if err := m.Validate(); err != nil {
		return errors.ValidationError(err.Error())
	}

	failed := 0
	for _, o := range rec.Outcomes {
		if o.Failed() {
			failed++
		}
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.ArchiveError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO runs (
		run_id, study, fingerprint, config_hash, code_version, models, failed, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		m.RunID.String(), m.Study, m.Fingerprint.Fingerprint.String(), m.ConfigHash.String(),
		m.CodeVersion, len(rec.Outcomes), failed, m.CreatedAt.Sortable(),
	); err != nil {
		return errors.ArchiveError("failed to insert run", err)
	}

	for name, hash := range m.Inputs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO run_inputs (run_id, name, content_hash) VALUES (?, ?, ?)`),
			m.RunID.String(), name, hash.String()); err != nil {
			return errors.ArchiveError("failed to insert run input", err)
		}
	}

	for _, o := range rec.Outcomes {
		if err := insertOutcome(ctx, tx, m.RunID, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.ArchiveError("failed to commit run", err)
	}
	return nil
}

func insertOutcome(ctx context.Context, tx *sqlx.Tx, runID core.RunID, o stats.ModelOutcome) error {
	if o.Failed() {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO model_fits (
			run_id, model, formula, error_message
		) VALUES (?, ?, ?, ?)`), runID.String(), o.Spec.Name, o.Spec.Formula(), o.Err.Error())
		if err != nil {
			return errors.ArchiveError("failed to insert failed model "+o.Spec.Name, err)
		}
		return nil
	}

	res := o.Result
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO model_fits (
		run_id, model, formula, r_squared, adj_r_squared, n_obs
	) VALUES (?, ?, ?, ?, ?, ?)`),
		runID.String(), o.Spec.Name, o.Spec.Formula(),
		nullFloat(res.RSquared), nullFloat(res.AdjRSquared), res.NObs,
	); err != nil {
		return errors.ArchiveError("failed to insert model "+o.Spec.Name, err)
	}

	for pos, c := range res.Coefficients {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO coefficients (
			run_id, model, position, term, estimate, std_error, t_value, p_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			runID.String(), o.Spec.Name, pos, c.Term,
			nullFloat(c.Estimate), nullFloat(c.StdError), nullFloat(c.TValue), nullFloat(c.PValue),
		); err != nil {
			return errors.ArchiveError("failed to insert coefficient", err)
		}
	}

	for _, v := range res.VIFs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO vifs (
			run_id, model, variable, vif, unbounded
		) VALUES (?, ?, ?, ?, ?)`),
			runID.String(), o.Spec.Name, v.Variable, nullFloat(v.Value), v.Unbounded,
		); err != nil {
			return errors.ArchiveError("failed to insert VIF", err)
		}
	}
	return nil
}

// ListRuns returns the most recent runs of a study, newest first
func (a *runArchive) ListRuns(ctx context.Context, study string, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []ports.RunSummary
	err := a.db.SelectContext(ctx, &runs, a.db.Rebind(`SELECT
		run_id, study, fingerprint, code_version, models, failed, created_at
	FROM runs
	WHERE study = ?
	ORDER BY created_at DESC, run_id DESC
	LIMIT ?`), study, limit)
	if err != nil {
		return nil, errors.ArchiveError("failed to list runs", err)
	}
	return runs, nil
}

// FindByFingerprint returns earlier runs that should have produced identical outputs
func (a *runArchive) FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]ports.RunSummary, error) {
	var runs []ports.RunSummary
	err := a.db.SelectContext(ctx, &runs, a.db.Rebind(`SELECT
		run_id, study, fingerprint, code_version, models, failed, created_at
	FROM runs
	WHERE fingerprint = ?
	ORDER BY created_at, run_id`), fingerprint.String())
	if err != nil {
		return nil, errors.ArchiveError("failed to query runs by fingerprint", err)
	}
	return runs, nil
}

// Coefficients returns the archived coefficients of a run in model and term order
func (a *runArchive) Coefficients(ctx context.Context, runID core.RunID) ([]ports.StoredCoefficient, error) {
	var coefs []ports.StoredCoefficient
	err := a.db.SelectContext(ctx, &coefs, a.db.Rebind(`SELECT
		model, term, estimate, std_error, t_value, p_value
	FROM coefficients
	WHERE run_id = ?
	ORDER BY model, position`), runID.String())
	if err != nil {
		return nil, errors.ArchiveError("failed to query coefficients", err)
	}
	if len(coefs) == 0 {
		var exists int
		err := a.db.GetContext(ctx, &exists, a.db.Rebind(`SELECT COUNT(*) FROM runs WHERE run_id = ?`), runID.String())
		if err != nil {
			return nil, errors.ArchiveError("failed to look up run", err)
		}
		if exists == 0 {
			return nil, errors.NotFound("run " + runID.String())
		}
	}
	return coefs, nil
}

// nullFloat stores non-finite values as NULL; neither backend round-trips NaN reliably
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

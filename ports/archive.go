package ports

import (
	"context"

	"distreg/domain/core"
	"distreg/domain/run"
	"distreg/domain/stats"
)

// RunRecord is everything archived about one run
type RunRecord struct {
	Manifest *run.RunManifest
	Outcomes []stats.ModelOutcome
}

// RunSummary is a row of the run listing
type RunSummary struct {
	RunID       string `db:"run_id"`
	Study       string `db:"study"`
	Fingerprint string `db:"fingerprint"`
	CodeVersion string `db:"code_version"`
	Models      int    `db:"models"`
	Failed      int    `db:"failed"`
	CreatedAt   string `db:"created_at"`
}

// StoredCoefficient is an archived coefficient row
type StoredCoefficient struct {
	Model    string   `db:"model"`
	Term     string   `db:"term"`
	Estimate *float64 `db:"estimate"`
	StdError *float64 `db:"std_error"`
	TValue   *float64 `db:"t_value"`
	PValue   *float64 `db:"p_value"`
}

// RunArchive persists run results for later comparison
type RunArchive interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, study string, limit int) ([]RunSummary, error)
	FindByFingerprint(ctx context.Context, fingerprint core.Hash) ([]RunSummary, error)
	Coefficients(ctx context.Context, runID core.RunID) ([]StoredCoefficient, error)
}

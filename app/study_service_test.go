package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"distreg/adapters/archive"
	"distreg/domain/core"
	domainDataset "distreg/domain/dataset"
	"distreg/domain/stats"
	"distreg/internal"
	"distreg/internal/config"
	"distreg/internal/export"
	"distreg/internal/geo"
	"distreg/internal/testkit"
	"distreg/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testConfig(outDir string) *config.Config {
	return &config.Config{
		Output:     config.OutputConfig{Dir: outDir, Workbook: true},
		Regression: config.RegressionConfig{Parallelism: 2, ConfidenceLevel: 0.95},
	}
}

func loadSyntheticStudy(t *testing.T) *config.Study {
	t.Helper()
	path, err := testkit.NewTestKit(42).WithNoise(0.05).WriteStudy(t.TempDir())
	require.NoError(t, err)
	study, err := config.LoadStudy(path)
	require.NoError(t, err)
	return study
}

func TestStudyService_Run(t *testing.T) {
	study := loadSyntheticStudy(t)
	out := t.TempDir()

	result, err := NewStudyService(testConfig(out), internal.NewNopLogger(), nil).Run(context.Background(), study)
	require.NoError(t, err)

	assert.Equal(t, 20, result.Merge.Rows, "row count follows the gazetteer base")
	require.Len(t, result.Merge.Joins, 3)
	assert.Equal(t, []string{"USA"}, result.Merge.Joins[0].Unmatched)

	assert.Equal(t, 18, result.Selection.Kept)
	assert.ElementsMatch(t, []string{"CUB", "VEN"}, result.Selection.DroppedKeys)

	outcomes := result.Report.Outcomes
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Failed())
	assert.False(t, outcomes[1].Failed())
	assert.Equal(t, 2, result.Fitted())

	var rank *core.RankDeficientError
	require.True(t, errors.As(outcomes[2].Err, &rank), "income on two scales is collinear: %v", outcomes[2].Err)

	m1 := outcomes[0].Result
	assert.Equal(t, 18, m1.NObs)
	dist, ok := m1.Coefficient("log_distance")
	require.True(t, ok)
	assert.InDelta(t, testkit.DistanceEffect, dist.Estimate, 0.2)
	income, ok := m1.Coefficient("log_gdp_pc")
	require.True(t, ok)
	assert.InDelta(t, testkit.IncomeEffect, income.Estimate, 0.2)

	assert.Len(t, result.Files, 8)
	for _, name := range []string{export.RegressionResults + ".csv", export.FailedModels + ".csv", WorkbookName} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	assert.NoError(t, result.Manifest.Validate())
	assert.Len(t, result.Manifest.Inputs, 4)
}

func TestStudyService_RerunIsByteIdentical(t *testing.T) {
	study := loadSyntheticStudy(t)
	first, second := t.TempDir(), t.TempDir()

	cfg := testConfig(first)
	cfg.Output.Workbook = false
	a, err := NewStudyService(cfg, nil, nil).Run(context.Background(), study)
	require.NoError(t, err)

	cfg = testConfig(second)
	cfg.Output.Workbook = false
	cfg.Regression.Parallelism = 1
	b, err := NewStudyService(cfg, nil, nil).Run(context.Background(), study)
	require.NoError(t, err)

	assert.True(t, a.Manifest.Fingerprint.Matches(b.Manifest.Fingerprint))
	assert.NotEqual(t, a.Manifest.RunID, b.Manifest.RunID)

	require.Equal(t, len(a.Files), len(b.Files))
	for i := range a.Files {
		x, err := os.ReadFile(a.Files[i])
		require.NoError(t, err)
		y, err := os.ReadFile(b.Files[i])
		require.NoError(t, err)
		assert.Equal(t, x, y, filepath.Base(a.Files[i]))
	}
}

func TestStudyService_Archive(t *testing.T) {
	ctx := context.Background()
	db, err := archive.Open(ctx, archive.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	runs := archive.NewRunArchive(db)

	study := loadSyntheticStudy(t)
	result, err := NewStudyService(testConfig(t.TempDir()), nil, runs).Run(ctx, study)
	require.NoError(t, err)
	assert.True(t, result.Archived)

	listed, err := runs.ListRuns(ctx, study.Name, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 3, listed[0].Models)
	assert.Equal(t, 1, listed[0].Failed)

	coefs, err := runs.Coefficients(ctx, result.Manifest.RunID)
	require.NoError(t, err)
	assert.Len(t, coefs, 3+5, "m1 and m2 coefficients with intercepts")
}

func TestStudyService_MergeErrorAborts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.csv"), []byte("country,x\nARG,1\nARG,2\n"), 0o644))
	study, err := config.ParseStudy([]byte(`
name: dup
inputs:
  secondaries:
    - {name: dup, path: ` + filepath.Join(dir, "dup.csv") + `}
distance: {gazetteer: true, countries: [ARG, CHL]}
models:
  - {name: m1, outcome: x, predictors: [distance_km]}
`))
	require.NoError(t, err)

	_, err = NewStudyService(testConfig(t.TempDir()), nil, nil).Run(context.Background(), study)
	var dup *core.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "ARG", dup.Key)
}

func TestStudyService_DistanceTable(t *testing.T) {
	svc := NewStudyService(testConfig(t.TempDir()), nil, nil)

	tbl, err := svc.DistanceTable("base", geo.Washington, []string{"CHL", "ARG"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CHL", "ARG"}, tbl.Keys())

	all, err := svc.DistanceTable("base", geo.Washington, nil)
	require.NoError(t, err)
	assert.Equal(t, len(geo.Capitals()), all.Len())

	_, err = svc.DistanceTable("base", geo.Washington, []string{"XXX"})
	assert.Error(t, err)
}

func TestStudyService_CustomDistanceColumn(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.csv"), []byte("country,y\nARG,3\nBRA,1\nCHL,2.5\nPER,1.2\n"), 0o644))
	study, err := config.ParseStudy([]byte(`
name: custom
inputs:
  secondaries:
    - {name: y, path: ` + filepath.Join(dir, "y.csv") + `}
distance: {gazetteer: true, column: km_to_dc, countries: [ARG, BRA, CHL, PER]}
models:
  - {name: m1, outcome: y, predictors: [km_to_dc]}
`))
	require.NoError(t, err)

	result, err := NewStudyService(testConfig(t.TempDir()), nil, nil).Run(context.Background(), study)
	require.NoError(t, err)
	require.False(t, result.Report.Outcomes[0].Failed(), "%v", result.Report.Outcomes[0].Err)
	_, ok := result.Report.Outcomes[0].Result.Coefficient("km_to_dc")
	assert.True(t, ok)
	assert.Equal(t, stats.InterceptTerm, result.Report.Outcomes[0].Result.Coefficients[0].Term)
}

type tableReader struct{ t *domainDataset.Table }

func (r tableReader) ReadTable(ctx context.Context, name string) (*domainDataset.Table, error) {
	return r.t, nil
}

func TestStudyService_ReaderFactory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "placeholder.csv")
	require.NoError(t, os.WriteFile(path, []byte("ignored"), 0o644))

	tables, err := testkit.NewTestKit(5).Generate()
	require.NoError(t, err)

	study, err := config.ParseStudy([]byte(`
name: injected
inputs:
  secondaries:
    - {name: cow_nmc, path: ` + path + `}
distance: {gazetteer: true}
transforms:
  - {op: log, field: cinc, as: log_cinc}
  - {op: log, field: distance_km, as: log_distance}
required: [log_cinc]
models:
  - {name: m1, outcome: log_cinc, predictors: [log_distance]}
`))
	require.NoError(t, err)

	svc := NewStudyService(testConfig(t.TempDir()), nil, nil).
		WithReaderFactory(func(in config.InputConfig, p string) ports.TableReader {
			assert.Equal(t, path, p)
			return tableReader{tables.COW}
		})
	result, err := svc.Run(context.Background(), study)
	require.NoError(t, err)
	assert.Equal(t, 19, result.Selection.Kept)
	assert.Equal(t, []string{"CUB"}, result.Selection.DroppedKeys)
	assert.False(t, result.Report.Outcomes[0].Failed())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"distreg/internal/dataset"
	"distreg/internal/errors"
	"distreg/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalStudy = `
name: test
inputs:
  base: {path: capitals.csv}
  secondaries:
    - {name: cow, path: cow.csv}
transforms:
  - {op: log, field: cinc, as: log_cinc, offset: 0.001}
  - {op: ratio, numerator: gdp, denominator: population, as: gdp_pc}
models:
  - {name: m1, outcome: log_cinc, predictors: [gdp_pc]}
`

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DISTREG_OUTPUT_DIR", "DISTREG_ARCHIVE_DRIVER", "DISTREG_PARALLELISM", "DISTREG_WORKBOOK"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, 1, cfg.Regression.Parallelism)
	assert.Equal(t, 0.95, cfg.Regression.ConfidenceLevel)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DISTREG_OUTPUT_DIR", "results")
	t.Setenv("DISTREG_ARCHIVE_DRIVER", "sqlite")
	t.Setenv("DISTREG_ARCHIVE_DSN", "file:runs.db")
	t.Setenv("DISTREG_PARALLELISM", "4")
	t.Setenv("DISTREG_WORKBOOK", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "results", cfg.Output.Dir)
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, 4, cfg.Regression.Parallelism)
	assert.True(t, cfg.Output.Workbook)
}

func TestLoad_RejectsBadArchive(t *testing.T) {
	t.Setenv("DISTREG_ARCHIVE_DRIVER", "mysql")
	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	t.Setenv("DISTREG_ARCHIVE_DRIVER", "postgres")
	t.Setenv("DISTREG_ARCHIVE_DSN", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DISTREG_TEST_ONLY=from-file\n"), 0o600))
	t.Setenv("DISTREG_TEST_ONLY", "")
	require.NoError(t, os.Unsetenv("DISTREG_TEST_ONLY"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("DISTREG_TEST_ONLY"))
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "absent.env")))
}

func TestParseStudy(t *testing.T) {
	study, err := ParseStudy([]byte(minimalStudy))
	require.NoError(t, err)

	assert.Equal(t, "base", study.Inputs.Base.Name)
	specs, err := study.TransformSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, dataset.Log{Field: "cinc", As: "log_cinc", Offset: 0.001}, specs[0])
	assert.Equal(t, []string{"log_cinc", "gdp_pc"}, study.ModelVariables())
}

func TestParseStudy_DistanceDefaults(t *testing.T) {
	study, err := ParseStudy([]byte(`
name: gaz
distance: {gazetteer: true}
models:
  - {name: m1, outcome: y, predictors: [x]}
`))
	require.NoError(t, err)
	require.NotNil(t, study.Distance.Reference)
	assert.Equal(t, geo.Washington, *study.Distance.Reference)
	assert.Equal(t, geo.ColDistance, study.Distance.Column)
}

func TestParseStudy_ScaleAcceptsZeroFactor(t *testing.T) {
	study, err := ParseStudy([]byte(`
name: scaled
inputs: {base: {path: a.csv}}
transforms:
  - {op: scale, field: pop, as: pop_k, factor: 0.001}
  - {op: scale, field: pop, as: pop_zero, factor: 0}
models:
  - {name: m1, outcome: pop_k, predictors: [pop_zero]}
`))
	require.NoError(t, err)
	specs, err := study.TransformSpecs()
	require.NoError(t, err)
	assert.Equal(t, dataset.Scale{Field: "pop", As: "pop_k", Factor: 0.001}, specs[0])
	assert.Equal(t, dataset.Scale{Field: "pop", As: "pop_zero", Factor: 0}, specs[1])
}

func TestParseStudy_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "name: x\nbogus: 1\n",
		"no base":           "name: x\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
		"unknown op":        "name: x\ninputs: {base: {path: a.csv}}\ntransforms: [{op: sqrt, field: a, as: b}]\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
		"duplicate model":   "name: x\ninputs: {base: {path: a.csv}}\nmodels: [{name: m, outcome: y, predictors: [x]}, {name: m, outcome: y, predictors: [z]}]\n",
		"empty predictors":  "name: x\ninputs: {base: {path: a.csv}}\nmodels: [{name: m, outcome: y, predictors: []}]\n",
		"no models":         "name: x\ninputs: {base: {path: a.csv}}\n",
		"duplicate target":  "name: x\ninputs: {base: {path: a.csv}}\ntransforms: [{op: log, field: a, as: b}, {op: log, field: c, as: b}]\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
		"bad reference":     "name: x\ndistance: {gazetteer: true, reference: {lat: 95, lon: 0}}\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
		"secondary no path": "name: x\ninputs: {base: {path: a.csv}, secondaries: [{name: s}]}\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
		"scale no factor":   "name: x\ninputs: {base: {path: a.csv}}\ntransforms: [{op: scale, field: a, as: b}]\nmodels: [{name: m, outcome: y, predictors: [x]}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStudy([]byte(doc))
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestLoadStudy_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalStudy), 0o600))

	study, err := LoadStudy(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "capitals.csv"), study.ResolvePath(study.Inputs.Base.Path))
	assert.Equal(t, "/abs/cow.csv", study.ResolvePath("/abs/cow.csv"))

	_, err = LoadStudy(filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, errors.CodeIOError, errors.GetCode(err))
}

func TestSampleStudyIsValid(t *testing.T) {
	study, err := LoadStudy(filepath.Join("..", "..", "configs", "latam_capability.yaml"))
	require.NoError(t, err)
	assert.True(t, study.Distance.Gazetteer)
	assert.Len(t, study.Models, 3)
}

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"distreg/adapters/excel"
	"distreg/domain/core"
	domainDataset "distreg/domain/dataset"
	"distreg/domain/run"
	"distreg/domain/stats"
	"distreg/internal"
	"distreg/internal/analysis"
	"distreg/internal/config"
	"distreg/internal/dataset"
	"distreg/internal/errors"
	"distreg/internal/export"
	"distreg/internal/geo"
	"distreg/internal/regression"
	"distreg/ports"
)

// CodeVersion is recorded in every run manifest; override at link time
var CodeVersion = "v0.1.0"

// WorkbookName is the workbook written next to the CSV artifacts
const WorkbookName = "results.xlsx"

// ReaderFactory opens the table described by one study input. The path is
// already resolved against the study file.
type ReaderFactory func(in config.InputConfig, path string) ports.TableReader

// StudyService runs a study end to end: load, merge, transform, select,
// describe, fit and export.
type StudyService struct {
	cfg       *config.Config
	logger    *internal.Logger
	archive   ports.RunArchive
	newReader ReaderFactory
}

// RunResult summarizes one executed study
type RunResult struct {
	Manifest  *run.RunManifest
	Merge     *dataset.MergeReport
	Selection dataset.Selection
	Report    export.Report
	Files     []string
	Archived  bool
	Duration  time.Duration
}

// Fitted counts models that produced a result
func (r *RunResult) Fitted() int {
	n := 0
	for _, o := range r.Report.Outcomes {
		if !o.Failed() {
			n++
		}
	}
	return n
}

// NewStudyService creates a study service. archive may be nil to skip archiving.
func NewStudyService(cfg *config.Config, logger *internal.Logger, archive ports.RunArchive) *StudyService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &StudyService{cfg: cfg, logger: logger, archive: archive}
	s.newReader = s.fileReader
	return s
}

// WithReaderFactory replaces how input tables are opened
func (s *StudyService) WithReaderFactory(f ReaderFactory) *StudyService {
	s.newReader = f
	return s
}

func (s *StudyService) fileReader(in config.InputConfig, path string) ports.TableReader {
	rc := excel.DefaultReaderConfig()
	if in.Key != "" {
		rc.Key = in.Key
	}
	rc.Sheet = in.Sheet
	return excel.NewDataReader(path, rc, s.logger)
}

// Run executes the study and writes its artifacts to the configured output
// directory. Merge and transform errors abort the run; model errors are
// reported per model in the result.
func (s *StudyService) Run(ctx context.Context, study *config.Study) (*RunResult, error) {
	start := time.Now()
	log := s.logger.With("study", study.Name)

	inputs := make(map[string]core.InputHash)
	base, err := s.loadBase(ctx, study, inputs)
	if err != nil {
		return nil, err
	}

	secondaries := make([]*domainDataset.Table, 0, len(study.Inputs.Secondaries))
	for _, in := range study.Inputs.Secondaries {
		t, err := s.loadInput(ctx, study, in, inputs)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, t)
	}

	merger := dataset.NewMerger(&dataset.MergeConfig{
		OutputName: study.Name,
		ProgressCallback: func(progress float64, message string) {
			log.Debug("merge %.0f%%: %s", progress, message)
		},
	})
	merged, mergeReport, err := merger.Merge(base, secondaries...)
	if err != nil {
		return nil, err
	}
	for _, j := range mergeReport.Joins {
		if len(j.Unmatched) > 0 {
			log.Warn("%s: %d keys not in base table dropped: %v", j.Table, len(j.Unmatched), j.Unmatched)
		}
		log.Debug("%s: matched %d of %d base rows", j.Table, j.Matched, mergeReport.Rows)
	}

	specs, err := study.TransformSpecs()
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	transformed, err := dataset.Transform(merged, specs...)
	if err != nil {
		return nil, err
	}

	sample := transformed
	selection := dataset.Selection{Kept: transformed.Len()}
	if len(study.Required) > 0 {
		sample, selection, err = dataset.SelectComplete(transformed, study.Required)
		if err != nil {
			return nil, err
		}
	}
	log.Info("analysis sample: %d countries kept, %d dropped %v", selection.Kept, selection.Dropped, selection.DroppedKeys)

	report := export.Report{Data: sample}
	if len(study.Describe) > 0 {
		if report.Descriptives, err = analysis.Describe(sample, study.Describe, study.Labels); err != nil {
			return nil, err
		}
	}
	if len(study.Correlate) > 1 {
		m, err := analysis.Correlate(sample, study.Correlate, study.Labels)
		if err != nil {
			return nil, err
		}
		report.Correlations = &m
	}

	engine := regression.NewEngine(regression.Options{
		ConfidenceLevel: s.cfg.Regression.ConfidenceLevel,
		Parallelism:     s.cfg.Regression.Parallelism,
	})
	if report.Outcomes, err = engine.FitAll(ctx, sample, study.Models); err != nil {
		return nil, err
	}
	s.logOutcomes(log, report.Outcomes)

	files, err := export.WriteAll(s.cfg.Output.Dir, report)
	if err != nil {
		return nil, errors.IOError(s.cfg.Output.Dir, err)
	}
	if s.cfg.Output.Workbook {
		path := filepath.Join(s.cfg.Output.Dir, WorkbookName)
		if err := export.WriteWorkbook(path, report); err != nil {
			return nil, errors.IOError(path, err)
		}
		files = append(files, path)
	}

	manifest := run.NewRunManifest(study.Name, inputs, study.Source(), CodeVersion)
	result := &RunResult{
		Manifest:  manifest,
		Merge:     mergeReport,
		Selection: selection,
		Report:    report,
		Files:     files,
	}

	if s.archive != nil {
		if err := s.archive.SaveRun(ctx, ports.RunRecord{Manifest: manifest, Outcomes: report.Outcomes}); err != nil {
			return nil, err
		}
		result.Archived = true
	}

	result.Duration = time.Since(start)
	log.Info("run %s finished in %s: %d of %d models fitted, fingerprint %s",
		manifest.RunID, result.Duration.Round(time.Millisecond), result.Fitted(), len(report.Outcomes),
		manifest.Fingerprint.Fingerprint.Short())
	return result, nil
}

// DistanceTable builds the gazetteer base table for the given countries
// (all built-in capitals when empty), measured from ref.
func (s *StudyService) DistanceTable(name string, ref geo.Point, countries []string) (*domainDataset.Table, error) {
	capitals := geo.Capitals()
	if len(countries) > 0 {
		capitals = capitals[:0:0]
		for _, raw := range countries {
			code, err := core.ParseCountryCode(raw)
			if err != nil {
				return nil, errors.InvalidInput(err.Error())
			}
			c, ok := geo.LookupCapital(code.String())
			if !ok {
				return nil, errors.NotFound(fmt.Sprintf("capital of %s", code))
			}
			capitals = append(capitals, c)
		}
	}
	return geo.DistanceTable(name, ref, capitals)
}

func (s *StudyService) loadBase(ctx context.Context, study *config.Study, inputs map[string]core.InputHash) (*domainDataset.Table, error) {
	in := study.Inputs.Base
	d := study.Distance

	if in.Path == "" {
		if d == nil {
			return nil, errors.InternalError("study has neither a base path nor a distance gazetteer")
		}
		t, err := s.DistanceTable(in.Name, *d.Reference, d.Countries)
		if err != nil {
			return nil, err
		}
		if d.Column != geo.ColDistance {
			if t, err = renameColumn(t, geo.ColDistance, d.Column); err != nil {
				return nil, err
			}
		}
		inputs[in.Name] = gazetteerHash(t)
		s.logger.Debug("base table %s: %d capitals from the gazetteer, reference %s", in.Name, t.Len(), d.Reference)
		return t, nil
	}

	t, err := s.loadInput(ctx, study, in, inputs)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return t, nil
	}
	return geo.AddDistanceColumn(t, *d.Reference, d.Latitude, d.Longitude, d.Column)
}

func (s *StudyService) loadInput(ctx context.Context, study *config.Study, in config.InputConfig, inputs map[string]core.InputHash) (*domainDataset.Table, error) {
	path := study.ResolvePath(in.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	inputs[in.Name] = core.InputHash(core.NewHash(data))

	t, err := s.newReader(in, path).ReadTable(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("loaded %s from %s: %d rows, %d columns", in.Name, path, t.Len(), t.Width())
	return t, nil
}

func (s *StudyService) logOutcomes(log *internal.Logger, outcomes []stats.ModelOutcome) {
	for _, o := range outcomes {
		if o.Failed() {
			log.Warn("model %s failed: %v", o.Spec.Name, o.Err)
			continue
		}
		if o.Result.HasUnboundedVIF() {
			for _, d := range o.Result.Diagnostics {
				log.Warn("%v", d)
			}
		}
		log.Debug("model %s: n=%d R²=%.4f", o.Spec.Name, o.Result.NObs, o.Result.RSquared)
	}
}

// gazetteerHash identifies a generated base table by its content
func gazetteerHash(t *domainDataset.Table) core.InputHash {
	var buf []byte
	for _, rec := range t.Records() {
		for _, cell := range rec {
			buf = append(buf, cell...)
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
	}
	return core.InputHash(core.NewHash(buf))
}

func renameColumn(t *domainDataset.Table, from, to string) (*domainDataset.Table, error) {
	cols := t.Columns()
	for i, c := range cols {
		if c.Name() == from {
			cols[i] = c.Renamed(to)
		}
	}
	return domainDataset.NewTable(t.Name(), t.Key(), cols...)
}

// Package export serializes analysis results into the delimited text files
// and workbook handed to readers of a study. Formatting is pure: the same
// results always render to the same bytes.
package export

import (
	"math"
	"strconv"

	"distreg/domain/dataset"
	"distreg/domain/stats"
)

// Report bundles every artifact of one run
type Report struct {
	Descriptives []stats.Descriptive
	Correlations *stats.CorrelationMatrix
	Outcomes     []stats.ModelOutcome
	Data         *dataset.Table // analysis sample after selection; optional
}

// Artifact file names, also used as workbook sheet names
const (
	Descriptives      = "descriptives"
	Correlations      = "correlations"
	RegressionResults = "regression_results"
	ModelFit          = "model_fit"
	VIFs              = "vif"
	FailedModels      = "failed_models"
	AnalysisData      = "analysis_data"
)

// FormatFloat renders v in the shortest form that round-trips. NaN is "NA",
// infinities are "Inf" and "-Inf".
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NA"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func descriptiveRecords(rows []stats.Descriptive) [][]string {
	records := [][]string{{"variable", "n", "mean", "sd", "min", "median", "max"}}
	for _, d := range rows {
		records = append(records, []string{
			d.Label,
			strconv.Itoa(d.N),
			FormatFloat(d.Mean),
			FormatFloat(d.SD),
			FormatFloat(d.Min),
			FormatFloat(d.Median),
			FormatFloat(d.Max),
		})
	}
	return records
}

// correlationRecords renders a square matrix with an empty corner cell
func correlationRecords(m stats.CorrelationMatrix) [][]string {
	header := append([]string{""}, m.Labels...)
	records := [][]string{header}
	for i, row := range m.Values {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, m.Labels[i])
		for _, v := range row {
			rec = append(rec, FormatFloat(v))
		}
		records = append(records, rec)
	}
	return records
}

func regressionRecords(outcomes []stats.ModelOutcome) [][]string {
	records := [][]string{{"model", "variable", "estimate", "std_error", "t_value", "p_value", "significance"}}
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		for _, c := range o.Result.Coefficients {
			records = append(records, []string{
				o.Spec.DisplayName(),
				c.Term,
				FormatFloat(c.Estimate),
				FormatFloat(c.StdError),
				FormatFloat(c.TValue),
				FormatFloat(c.PValue),
				stats.SignificanceCode(c.PValue),
			})
		}
	}
	return records
}

func modelFitRecords(outcomes []stats.ModelOutcome) [][]string {
	records := [][]string{{"model", "r_squared", "adj_r_squared", "n_obs"}}
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		records = append(records, []string{
			o.Spec.DisplayName(),
			FormatFloat(o.Result.RSquared),
			FormatFloat(o.Result.AdjRSquared),
			strconv.Itoa(o.Result.NObs),
		})
	}
	return records
}

// vifRecords uses the two-column layout for a single fitted model and
// prefixes a model column otherwise
func vifRecords(outcomes []stats.ModelOutcome) [][]string {
	var fitted []stats.ModelOutcome
	for _, o := range outcomes {
		if !o.Failed() {
			fitted = append(fitted, o)
		}
	}

	if len(fitted) == 1 {
		records := [][]string{{"variable", "VIF"}}
		for _, v := range fitted[0].Result.VIFs {
			records = append(records, []string{v.Variable, FormatFloat(v.Value)})
		}
		return records
	}

	records := [][]string{{"model", "variable", "VIF"}}
	for _, o := range fitted {
		for _, v := range o.Result.VIFs {
			records = append(records, []string{o.Spec.DisplayName(), v.Variable, FormatFloat(v.Value)})
		}
	}
	return records
}

// failedRecords lists fit errors, then diagnostics of models that did fit
func failedRecords(outcomes []stats.ModelOutcome) [][]string {
	records := [][]string{{"model", "error"}}
	for _, o := range outcomes {
		if o.Failed() {
			records = append(records, []string{o.Spec.DisplayName(), o.Err.Error()})
		}
	}
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		for _, d := range o.Result.Diagnostics {
			records = append(records, []string{o.Spec.DisplayName(), d.Error()})
		}
	}
	return records
}

// sheets lists the artifacts of r in output order
func (r Report) sheets() []sheet {
	out := []sheet{{Descriptives, descriptiveRecords(r.Descriptives)}}
	if r.Correlations != nil {
		out = append(out, sheet{Correlations, correlationRecords(*r.Correlations)})
	}
	out = append(out,
		sheet{RegressionResults, regressionRecords(r.Outcomes)},
		sheet{ModelFit, modelFitRecords(r.Outcomes)},
		sheet{VIFs, vifRecords(r.Outcomes)},
		sheet{FailedModels, failedRecords(r.Outcomes)},
	)
	if r.Data != nil {
		out = append(out, sheet{AnalysisData, tableRecords(r.Data)})
	}
	return out
}

// tableRecords renders a table with missing cells as "NA"
func tableRecords(t *dataset.Table) [][]string {
	records := [][]string{t.ColumnNames()}
	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		row := make([]string, len(cols))
		for j, c := range cols {
			switch v, ok := c.Float(i); {
			case ok:
				row[j] = FormatFloat(v)
			case c.Valid(i):
				row[j] = c.Text(i)
			default:
				row[j] = "NA"
			}
		}
		records = append(records, row)
	}
	return records
}

type sheet struct {
	name    string
	records [][]string
}

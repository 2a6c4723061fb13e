package regression

import (
	"errors"
	"fmt"
	"math"

	"distreg/domain/core"
	"distreg/domain/dataset"
	"distreg/domain/stats"
)

// vifTolerance is how close to 1 an auxiliary R² must be to count as exact collinearity
const vifTolerance = 1e-12

// VarianceInflation computes VIF_j = 1 / (1 - R²_j), where R²_j comes from
// regressing predictor j on the other predictors plus an intercept, over the
// rows complete in every predictor. Unbounded VIFs are reported in the
// returned slice and also joined into the error as InfiniteVIFError values.
func VarianceInflation(t *dataset.Table, spec stats.ModelSpec) ([]stats.VIF, error) {
	rows, columns, err := completeCases(t, spec.Predictors)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", spec.Name, err)
	}
	if len(rows) <= len(spec.Predictors) {
		return nil, &core.InsufficientObservationsError{Model: spec.Name, N: len(rows), K: len(spec.Predictors)}
	}
	vifs, errs := varianceInflation(spec.Name, spec.Predictors, columns, len(rows))
	return vifs, errors.Join(errs...)
}

func varianceInflation(model string, names []string, columns [][]float64, n int) ([]stats.VIF, []error) {
	out := make([]stats.VIF, len(names))
	var errs []error
	for j, name := range names {
		others := make([][]float64, 0, len(columns)-1)
		for i, col := range columns {
			if i != j {
				others = append(others, col)
			}
		}

		r2 := 1.0
		fit, err := leastSquares(designMatrix(others, n), columns[j])
		if err == nil {
			r2 = fit.rSquared()
		}

		switch {
		case math.IsNaN(r2):
			// constant predictor: no variance to inflate
			out[j] = stats.VIF{Variable: name, Value: math.NaN()}
		case 1-r2 <= vifTolerance:
			out[j] = stats.VIF{Variable: name, Value: math.Inf(1), Unbounded: true}
			errs = append(errs, &core.InfiniteVIFError{Model: model, Variable: name})
		default:
			out[j] = stats.VIF{Variable: name, Value: 1 / (1 - r2)}
		}
	}
	return out, errs
}

package analysis

import (
	"math"

	"distreg/domain/dataset"
	dstats "distreg/domain/stats"

	"github.com/montanaflynn/stats"
)

// Correlate computes pairwise Pearson correlations over the rows complete in
// every listed variable (listwise deletion), so all cells share one sample.
// A variable with zero variance correlates as NaN, including with itself.
func Correlate(t *dataset.Table, variables []string, labels map[string]string) (dstats.CorrelationMatrix, error) {
	values := make([][]float64, len(variables))
	valid := make([][]bool, len(variables))
	for j, name := range variables {
		v, ok, err := t.Numbers(name)
		if err != nil {
			return dstats.CorrelationMatrix{}, err
		}
		values[j], valid[j] = v, ok
	}

	columns := make([][]float64, len(variables))
	for i := 0; i < t.Len(); i++ {
		complete := true
		for j := range variables {
			complete = complete && valid[j][i]
		}
		if !complete {
			continue
		}
		for j := range variables {
			columns[j] = append(columns[j], values[j][i])
		}
	}

	m := dstats.CorrelationMatrix{
		Variables: append([]string(nil), variables...),
		Labels:    make([]string, len(variables)),
		Values:    make([][]float64, len(variables)),
	}
	if len(variables) > 0 {
		m.N = len(columns[0])
	}

	constant := make([]bool, len(variables))
	for j, col := range columns {
		m.Labels[j] = label(labels, variables[j])
		sd, err := stats.StandardDeviationPopulation(col)
		constant[j] = err != nil || sd == 0
	}

	for a := range variables {
		m.Values[a] = make([]float64, len(variables))
		for b := range variables {
			switch {
			case constant[a] || constant[b] || m.N < 2:
				m.Values[a][b] = math.NaN()
			case a == b:
				m.Values[a][b] = 1
			case b < a:
				m.Values[a][b] = m.Values[b][a]
			default:
				r, err := stats.Correlation(columns[a], columns[b])
				if err != nil {
					r = math.NaN()
				}
				m.Values[a][b] = r
			}
		}
	}
	return m, nil
}

// Package analysis computes the summary tables reported alongside the
// regressions: per-variable descriptives and a Pearson correlation matrix.
package analysis

import (
	"math"

	"distreg/domain/dataset"
	dstats "distreg/domain/stats"

	"github.com/montanaflynn/stats"
)

// Describe summarizes each variable over its own non-missing values, in the
// order given. labels maps a variable to its report label; unlabeled
// variables are reported under their column name.
func Describe(t *dataset.Table, variables []string, labels map[string]string) ([]dstats.Descriptive, error) {
	out := make([]dstats.Descriptive, 0, len(variables))
	for _, name := range variables {
		values, valid, err := t.Numbers(name)
		if err != nil {
			return nil, err
		}
		out = append(out, describe(name, label(labels, name), present(values, valid)))
	}
	return out, nil
}

func describe(name, label string, data []float64) dstats.Descriptive {
	d := dstats.Descriptive{
		Variable: name,
		Label:    label,
		N:        len(data),
		Mean:     math.NaN(),
		SD:       math.NaN(),
		Min:      math.NaN(),
		Median:   math.NaN(),
		Max:      math.NaN(),
	}
	if len(data) == 0 {
		return d
	}

	d.Mean, _ = stats.Mean(data)
	d.Min, _ = stats.Min(data)
	d.Max, _ = stats.Max(data)
	d.Median, _ = stats.Median(data)
	if len(data) > 1 {
		d.SD, _ = stats.StandardDeviationSample(data)
	}
	return d
}

func present(values []float64, valid []bool) []float64 {
	out := make([]float64, 0, len(values))
	for i, v := range values {
		if valid[i] {
			out = append(out, v)
		}
	}
	return out
}

func label(labels map[string]string, name string) string {
	if l, ok := labels[name]; ok && l != "" {
		return l
	}
	return name
}

// Package regression fits ordinary least squares models against a prepared
// country table and extracts coefficients, classical standard errors,
// t/p-values, fit statistics and variance inflation factors.
//
// Fitting is deterministic: no randomness is involved and the same
// (table, spec) pair always yields bit-identical results.
package regression

import (
	"context"
	"errors"
	"fmt"
	"math"

	"distreg/domain/core"
	"distreg/domain/dataset"
	"distreg/domain/stats"

	"golang.org/x/sync/errgroup"
)

// Options controls how models are fitted
type Options struct {
	ConfidenceLevel float64 // for coefficient intervals, default 0.95
	Parallelism     int     // models fitted concurrently by FitAll; <= 1 is sequential
}

// DefaultOptions returns the sequential, 95% interval configuration
func DefaultOptions() Options {
	return Options{ConfidenceLevel: 0.95, Parallelism: 1}
}

// Engine fits model specifications against tables
type Engine struct {
	opts Options
}

// NewEngine creates an engine, filling unset options with defaults
func NewEngine(opts Options) *Engine {
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		opts.ConfidenceLevel = 0.95
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Engine{opts: opts}
}

// Fit fits spec with the default engine
func Fit(t *dataset.Table, spec stats.ModelSpec) (*stats.RegressionResult, error) {
	return NewEngine(DefaultOptions()).Fit(t, spec)
}

// Fit estimates spec by OLS on the rows of t complete in every model
// variable. Different specs may therefore use different row subsets.
func (e *Engine) Fit(t *dataset.Table, spec stats.ModelSpec) (*stats.RegressionResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRegression, err)
	}

	rows, columns, err := completeCases(t, spec.Variables())
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", spec.Name, err)
	}
	n := len(rows)
	k := len(spec.Predictors) + 1
	if n <= k {
		return nil, &core.InsufficientObservationsError{Model: spec.Name, N: n, K: k}
	}

	y := columns[0]
	predictors := columns[1:]
	fit, err := leastSquares(designMatrix(predictors, n), y)
	if err != nil {
		var singular *errSingular
		if errors.As(err, &singular) {
			return nil, &core.RankDeficientError{Model: spec.Name, Rank: singular.rank, K: k}
		}
		return nil, fmt.Errorf("model %s: %w", spec.Name, err)
	}

	df := n - k
	sigma2 := fit.rss / float64(df)
	crit := tCritical(e.opts.ConfidenceLevel, df)

	terms := append([]string{stats.InterceptTerm}, spec.Predictors...)
	coefs := make([]stats.Coefficient, k)
	for j, term := range terms {
		est := fit.beta[j]
		se := math.Sqrt(sigma2 * fit.xtxInv.At(j, j))
		tval := est / se
		coefs[j] = stats.Coefficient{
			Term:     term,
			Estimate: est,
			StdError: se,
			TValue:   tval,
			PValue:   tTestPValue(tval, df),
			ConfLow:  est - crit*se,
			ConfHigh: est + crit*se,
		}
	}

	r2 := fit.rSquared()
	fStat := ((fit.tss - fit.rss) / float64(k-1)) / sigma2

	keys := make([]string, n)
	for i, row := range rows {
		keys[i] = t.KeyAt(row)
	}

	vifs, diagnostics := varianceInflation(spec.Name, spec.Predictors, predictors, n)

	return &stats.RegressionResult{
		Model:        spec,
		Coefficients: coefs,
		RSquared:     r2,
		AdjRSquared:  1 - (1-r2)*float64(n-1)/float64(df),
		NObs:         n,
		DFResidual:   df,
		Sigma:        math.Sqrt(sigma2),
		FStatistic:   fStat,
		FPValue:      fTestPValue(fStat, k-1, df),
		VIFs:         vifs,
		Diagnostics:  diagnostics,
		Countries:    keys,
	}, nil
}

// FitAll fits every spec independently. A failing spec is recorded in its
// outcome and never stops the others. Outcomes are returned in spec order
// regardless of Parallelism.
func (e *Engine) FitAll(ctx context.Context, t *dataset.Table, specs []stats.ModelSpec) ([]stats.ModelOutcome, error) {
	outcomes := make([]stats.ModelOutcome, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = stats.ModelOutcome{Spec: spec, Err: err}
				return nil
			}
			res, err := e.Fit(t, spec)
			outcomes[i] = stats.ModelOutcome{Spec: spec, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, ctx.Err()
}

// completeCases returns the rows complete in every variable and the
// variables' values restricted to those rows
func completeCases(t *dataset.Table, vars []string) ([]int, [][]float64, error) {
	values := make([][]float64, len(vars))
	valid := make([][]bool, len(vars))
	for j, name := range vars {
		v, ok, err := t.Numbers(name)
		if err != nil {
			return nil, nil, err
		}
		values[j], valid[j] = v, ok
	}

	var rows []int
	for i := 0; i < t.Len(); i++ {
		complete := true
		for j := range vars {
			if !valid[j][i] {
				complete = false
				break
			}
		}
		if complete {
			rows = append(rows, i)
		}
	}

	columns := make([][]float64, len(vars))
	for j := range vars {
		columns[j] = make([]float64, len(rows))
		for r, i := range rows {
			columns[j][r] = values[j][i]
		}
	}
	return rows, columns, nil
}

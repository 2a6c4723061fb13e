package regression

import (
	"context"
	"errors"
	"math"
	"testing"

	"distreg/domain/core"
	"distreg/domain/dataset"
	"distreg/domain/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var countries = []string{"ARG", "BOL", "BRA", "CHL", "COL", "ECU", "PER", "URY"}

func table(t *testing.T, cols ...*dataset.Column) *dataset.Table {
	t.Helper()
	n := cols[0].Len()
	key := dataset.NewTextColumn(dataset.DefaultKey, countries[:n], nil)
	tbl, err := dataset.NewTable("study", dataset.DefaultKey, append([]*dataset.Column{key}, cols...)...)
	require.NoError(t, err)
	return tbl
}

func num(name string, values ...float64) *dataset.Column {
	return dataset.NewNumberColumn(name, values, nil)
}

func TestFit_SimpleRegressionMatchesClosedForm(t *testing.T) {
	tbl := table(t,
		num("y", 2, 4, 5, 4, 5),
		num("x", 1, 2, 3, 4, 5),
	)
	res, err := Fit(tbl, stats.ModelSpec{Name: "m1", Outcome: "y", Predictors: []string{"x"}})
	require.NoError(t, err)

	require.Len(t, res.Coefficients, 2)
	icpt, slope := res.Coefficients[0], res.Coefficients[1]
	assert.Equal(t, stats.InterceptTerm, icpt.Term)
	assert.Equal(t, "x", slope.Term)

	assert.InDelta(t, 2.2, icpt.Estimate, 1e-10)
	assert.InDelta(t, 0.938083151964686, icpt.StdError, 1e-9)
	assert.InDelta(t, 2.345207879911715, icpt.TValue, 1e-8)
	assert.InDelta(t, 0.1007434560854199, icpt.PValue, 1e-6)

	assert.InDelta(t, 0.6, slope.Estimate, 1e-10)
	assert.InDelta(t, math.Sqrt(0.08), slope.StdError, 1e-10)
	assert.InDelta(t, 2.1213203435596424, slope.TValue, 1e-8)
	assert.InDelta(t, 0.1240270626575547, slope.PValue, 1e-6)
	assert.Less(t, slope.ConfLow, slope.Estimate)
	assert.Greater(t, slope.ConfHigh, slope.Estimate)

	assert.InDelta(t, 0.6, res.RSquared, 1e-10)
	assert.InDelta(t, 1-0.4*4.0/3.0, res.AdjRSquared, 1e-10)
	assert.InDelta(t, 4.5, res.FStatistic, 1e-9)
	assert.InDelta(t, slope.PValue, res.FPValue, 1e-6)
	assert.Equal(t, 5, res.NObs)
	assert.Equal(t, 3, res.DFResidual)
	assert.InDelta(t, math.Sqrt(0.8), res.Sigma, 1e-10)
}

func TestFit_ExactLinearRelationship(t *testing.T) {
	tbl := table(t,
		num("y", 5, 8, 11, 14, 17, 20),
		num("x", 1, 2, 3, 4, 5, 6),
	)
	res, err := Fit(tbl, stats.ModelSpec{Name: "exact", Outcome: "y", Predictors: []string{"x"}})
	require.NoError(t, err)

	assert.InDelta(t, 2, res.Coefficients[0].Estimate, 1e-9)
	assert.InDelta(t, 3, res.Coefficients[1].Estimate, 1e-9)
	assert.InDelta(t, 1, res.RSquared, 1e-12)
	assert.InDelta(t, 0, res.Coefficients[1].StdError, 1e-6)
}

func TestFit_PerfectCollinearityIsRankDeficient(t *testing.T) {
	tbl := table(t,
		num("y", 1, 3, 2, 5, 4, 6),
		num("x1", 1, 2, 3, 4, 5, 6),
		num("x2", 2, 4, 6, 8, 10, 12),
	)
	_, err := Fit(tbl, stats.ModelSpec{Name: "collinear", Outcome: "y", Predictors: []string{"x1", "x2"}})

	var rde *core.RankDeficientError
	require.True(t, errors.As(err, &rde))
	assert.Equal(t, "collinear", rde.Model)
	assert.Equal(t, 2, rde.Rank)
	assert.Equal(t, 3, rde.K)
	assert.True(t, core.IsRegressionError(err))
}

func TestFit_InsufficientObservations(t *testing.T) {
	tbl := table(t,
		num("y", 1, 2, 3),
		num("x1", 1, 4, 2),
		num("x2", 7, 3, 5),
	)
	_, err := Fit(tbl, stats.ModelSpec{Name: "tiny", Outcome: "y", Predictors: []string{"x1", "x2"}})

	var ioe *core.InsufficientObservationsError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, 3, ioe.N)
	assert.Equal(t, 3, ioe.K)
}

func TestFit_UsesRowsCompleteInModelVariablesOnly(t *testing.T) {
	tbl := table(t,
		dataset.NewNumberColumn("y", []float64{2, 4, 5, 4, 5, 9}, []bool{true, true, true, true, true, false}),
		num("x", 1, 2, 3, 4, 5, 6),
		dataset.NewNumberColumn("unused", []float64{0, 0, 0, 0, 0, 0}, []bool{false, false, false, false, false, false}),
	)
	res, err := Fit(tbl, stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"x"}})
	require.NoError(t, err)

	assert.Equal(t, 5, res.NObs)
	assert.Equal(t, []string{"ARG", "BOL", "BRA", "CHL", "COL"}, res.Countries)
	assert.InDelta(t, 0.6, res.Coefficients[1].Estimate, 1e-10)
}

func TestFit_ColumnErrors(t *testing.T) {
	tbl := table(t, num("y", 1, 2, 3, 4), num("x", 4, 3, 1, 2))

	_, err := Fit(tbl, stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"missing"}})
	assert.ErrorIs(t, err, core.ErrColumnNotFound)

	_, err = Fit(tbl, stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{dataset.DefaultKey}})
	assert.ErrorIs(t, err, core.ErrNonNumeric)

	_, err = Fit(tbl, stats.ModelSpec{Name: "m", Outcome: "y"})
	assert.ErrorIs(t, err, core.ErrRegression)
}

func TestFit_ConstantOutcomeHasUndefinedRSquared(t *testing.T) {
	tbl := table(t, num("y", 3, 3, 3, 3, 3), num("x", 1, 5, 2, 4, 3))
	res, err := Fit(tbl, stats.ModelSpec{Name: "flat", Outcome: "y", Predictors: []string{"x"}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.RSquared))
	assert.InDelta(t, 0, res.Coefficients[1].Estimate, 1e-12)
}

func TestFit_IsDeterministic(t *testing.T) {
	tbl := table(t,
		num("y", 0.3, 1.9, 2.2, 4.1, 3.7, 6.2, 5.9, 8.4),
		num("x1", 1, 2, 3, 4, 5, 6, 7, 8),
		num("x2", 2, 1, 4, 3, 6, 5, 8, 7),
	)
	spec := stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"x1", "x2"}}

	first, err := Fit(tbl, spec)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Fit(tbl, spec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVarianceInflation(t *testing.T) {
	tbl := table(t,
		num("y", 1, 2, 2, 4, 5, 5),
		num("x1", 1, 2, 3, 4, 5, 6),
		num("x2", 2, 1, 4, 3, 6, 5),
	)
	spec := stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"x1", "x2"}}

	vifs, err := VarianceInflation(tbl, spec)
	require.NoError(t, err)
	require.Len(t, vifs, 2)
	// with two predictors both VIFs equal 1/(1-r²)
	assert.InDelta(t, 3.190104166666668, vifs[0].Value, 1e-9)
	assert.InDelta(t, 3.190104166666668, vifs[1].Value, 1e-9)

	res, err := Fit(tbl, spec)
	require.NoError(t, err)
	assert.Equal(t, vifs, res.VIFs)
	assert.False(t, res.HasUnboundedVIF())
}

func TestVarianceInflation_SinglePredictorIsOne(t *testing.T) {
	tbl := table(t, num("y", 1, 2, 4, 3), num("x", 3, 1, 4, 1))
	vifs, err := VarianceInflation(tbl, stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"x"}})
	require.NoError(t, err)
	assert.InDelta(t, 1, vifs[0].Value, 1e-12)
}

func TestVarianceInflation_ExactCombinationIsUnbounded(t *testing.T) {
	tbl := table(t,
		num("y", 1, 2, 2, 4, 5, 5),
		num("x1", 1, 2, 3, 4, 5, 6),
		num("x2", 2, 1, 4, 3, 6, 5),
		num("x3", 3, 3, 7, 7, 11, 11),
	)
	vifs, err := VarianceInflation(tbl, stats.ModelSpec{Name: "m", Outcome: "y", Predictors: []string{"x1", "x2", "x3"}})

	var inf *core.InfiniteVIFError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, "m", inf.Model)
	require.Len(t, vifs, 3)
	for _, v := range vifs {
		assert.True(t, v.Unbounded, v.Variable)
		assert.True(t, math.IsInf(v.Value, 1))
	}
}

func TestFitAll_IsolatesFailures(t *testing.T) {
	tbl := table(t,
		num("y", 2, 4, 5, 4, 5, 7),
		num("x", 1, 2, 3, 4, 5, 6),
		num("x_twice", 2, 4, 6, 8, 10, 12),
	)
	specs := []stats.ModelSpec{
		{Name: "good", Outcome: "y", Predictors: []string{"x"}},
		{Name: "collinear", Outcome: "y", Predictors: []string{"x", "x_twice"}},
		{Name: "absent", Outcome: "y", Predictors: []string{"nope"}},
		{Name: "also_good", Outcome: "x", Predictors: []string{"y"}},
	}

	for _, parallelism := range []int{1, 4} {
		engine := NewEngine(Options{Parallelism: parallelism})
		outcomes, err := engine.FitAll(context.Background(), tbl, specs)
		require.NoError(t, err)
		require.Len(t, outcomes, len(specs))

		for i, o := range outcomes {
			assert.Equal(t, specs[i].Name, o.Spec.Name, "outcomes keep spec order")
		}
		assert.False(t, outcomes[0].Failed())
		assert.True(t, outcomes[1].Failed())
		assert.True(t, outcomes[2].Failed())
		assert.False(t, outcomes[3].Failed())
		assert.NotNil(t, outcomes[3].Result)
	}
}

func TestFitAll_CancelledContext(t *testing.T) {
	tbl := table(t, num("y", 1, 3, 2, 4), num("x", 1, 2, 3, 4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := NewEngine(DefaultOptions()).FitAll(ctx, tbl, []stats.ModelSpec{
		{Name: "m", Outcome: "y", Predictors: []string{"x"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}

func TestSignificanceThresholds(t *testing.T) {
	cases := map[float64]string{
		0.0005: "***", 0.001: "**", 0.005: "**", 0.01: "*", 0.049: "*",
		0.05: ".", 0.099: ".", 0.10: "", 0.5: "", math.NaN(): "",
	}
	for p, want := range cases {
		assert.Equal(t, want, stats.SignificanceCode(p), "p=%v", p)
	}
}

func latamTable(t *testing.T, cols ...*dataset.Column) *dataset.Table {
	t.Helper()
	keys := []string{
		"ARG", "BOL", "BRA", "CHL", "COL", "CRI", "CUB", "DOM", "ECU", "GTM",
		"HND", "HTI", "MEX", "NIC", "PAN", "PER", "PRY", "SLV", "URY", "VEN",
	}
	key := dataset.NewTextColumn(dataset.DefaultKey, keys[:cols[0].Len()], nil)
	tbl, err := dataset.NewTable("latam", dataset.DefaultKey, append([]*dataset.Column{key}, cols...)...)
	require.NoError(t, err)
	return tbl
}

func TestFit_RawUnitsMatchRescaledFit(t *testing.T) {
	millions := []float64{
		45.2, 11.8, 213.0, 19.1, 50.9, 5.1, 11.3, 10.8, 17.6, 17.1,
		9.9, 11.4, 126.0, 6.6, 4.3, 33.0, 7.3, 6.5, 3.5, 28.4,
	}
	share := []float64{
		4.1, 1.2, 8.0, 2.9, 3.3, 0.6, 1.5, 1.1, 1.0, 1.6,
		0.9, 0.5, 7.4, 0.8, 0.7, 2.6, 0.8, 0.3, 0.4, 2.2,
	}
	y := []float64{
		2.9, 0.8, 5.7, 2.4, 3.1, 0.9, 1.2, 1.5, 1.4, 1.3,
		0.6, 0.7, 5.1, 0.5, 0.9, 2.3, 0.7, 0.6, 1.0, 2.0,
	}
	population := make([]float64, len(millions))
	cinc := make([]float64, len(share))
	for i := range millions {
		population[i] = millions[i] * 1e6
		cinc[i] = share[i] * 1e-4
	}

	tbl := latamTable(t,
		num("y", y...),
		num("population", population...),
		num("cinc", cinc...),
		num("population_m", millions...),
		num("cinc_bp", share...),
	)

	raw, err := Fit(tbl, stats.ModelSpec{Name: "raw", Outcome: "y", Predictors: []string{"population", "cinc"}})
	require.NoError(t, err)
	rescaled, err := Fit(tbl, stats.ModelSpec{Name: "rescaled", Outcome: "y", Predictors: []string{"population_m", "cinc_bp"}})
	require.NoError(t, err)

	units := []float64{1, 1e6, 1e-4}
	for j, c := range raw.Coefficients {
		r := rescaled.Coefficients[j]
		assert.InEpsilon(t, r.Estimate, c.Estimate*units[j], 1e-8, c.Term)
		assert.InEpsilon(t, r.StdError, c.StdError*units[j], 1e-8, c.Term)
		assert.InEpsilon(t, r.TValue, c.TValue, 1e-8, c.Term)
	}
	assert.InDelta(t, rescaled.RSquared, raw.RSquared, 1e-12)
	assert.InEpsilon(t, rescaled.FStatistic, raw.FStatistic, 1e-8)
	require.Len(t, raw.VIFs, 2)
	assert.InEpsilon(t, rescaled.VIFs[0].Value, raw.VIFs[0].Value, 1e-8)
	assert.Empty(t, raw.Diagnostics)
}

func TestFit_NearCollinearPredictorsReportUnboundedVIF(t *testing.T) {
	// x3 = x1 + x2 apart from one cell, so the design keeps full rank while
	// every auxiliary R² rounds to 1
	tbl := table(t,
		num("y", 1, 2, 2, 4, 5, 5),
		num("x1", 1, 2, 3, 4, 5, 6),
		num("x2", 2, 1, 4, 3, 6, 5),
		num("x3", 3, 3, 7+1e-6, 7, 11, 11),
	)
	spec := stats.ModelSpec{Name: "near", Outcome: "y", Predictors: []string{"x1", "x2", "x3"}}

	outcomes, err := NewEngine(DefaultOptions()).FitAll(context.Background(), tbl, []stats.ModelSpec{spec})
	require.NoError(t, err)
	require.False(t, outcomes[0].Failed(), "%v", outcomes[0].Err)

	res := outcomes[0].Result
	assert.True(t, res.HasUnboundedVIF())
	require.NotEmpty(t, res.Diagnostics)
	for _, d := range res.Diagnostics {
		var inf *core.InfiniteVIFError
		require.True(t, errors.As(d, &inf))
		assert.Equal(t, "near", inf.Model)
		assert.True(t, core.IsRegressionError(d))
	}
}

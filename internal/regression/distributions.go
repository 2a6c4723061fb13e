package regression

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// tTestPValue computes the two-sided p-value of a t statistic with df degrees of freedom
func tTestPValue(tStatistic float64, df int) float64 {
	if df <= 0 || math.IsNaN(tStatistic) {
		return math.NaN()
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return 2 * tDist.Survival(math.Abs(tStatistic))
}

// tCritical returns the two-sided critical value for the given confidence level
func tCritical(level float64, df int) float64 {
	if df <= 0 {
		return math.NaN()
	}
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return tDist.Quantile(1 - (1-level)/2)
}

// fTestPValue computes the upper-tail p-value of an F statistic
func fTestPValue(fStatistic float64, df1, df2 int) float64 {
	if df1 <= 0 || df2 <= 0 || math.IsNaN(fStatistic) {
		return math.NaN()
	}
	if math.IsInf(fStatistic, 1) {
		return 0
	}
	fDist := distuv.F{D1: float64(df1), D2: float64(df2)}
	return fDist.Survival(fStatistic)
}

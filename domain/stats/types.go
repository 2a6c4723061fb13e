package stats

import (
	"fmt"
	"math"
	"strings"
)

// ============================================================================
// MODEL SPECIFICATION
// ============================================================================

// ModelSpec names an outcome and an ordered predictor list. Robustness
// variants are separate specs that share predictors.
type ModelSpec struct {
	Name       string   `json:"name" yaml:"name"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	Outcome    string   `json:"outcome" yaml:"outcome"`
	Predictors []string `json:"predictors" yaml:"predictors"`
}

// Variables returns the outcome followed by the predictors
func (m ModelSpec) Variables() []string {
	return append([]string{m.Outcome}, m.Predictors...)
}

// Formula renders the model in R-style notation, e.g. "log_cinc ~ log_distance + log_gdp_pc"
func (m ModelSpec) Formula() string {
	return fmt.Sprintf("%s ~ %s", m.Outcome, strings.Join(m.Predictors, " + "))
}

// DisplayName prefers the human label
func (m ModelSpec) DisplayName() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Name
}

// Validate checks structural soundness; column existence is checked at fit time
func (m ModelSpec) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if strings.TrimSpace(m.Outcome) == "" {
		return fmt.Errorf("model %s: outcome cannot be empty", m.Name)
	}
	if len(m.Predictors) == 0 {
		return fmt.Errorf("model %s: at least one predictor is required", m.Name)
	}
	seen := map[string]bool{m.Outcome: true}
	for _, p := range m.Predictors {
		if seen[p] {
			return fmt.Errorf("model %s: variable %q listed twice", m.Name, p)
		}
		seen[p] = true
	}
	return nil
}

// ============================================================================
// FITTED RESULTS
// ============================================================================

// InterceptTerm is the coefficient name used for the constant
const InterceptTerm = "(Intercept)"

// Coefficient is one estimated parameter of a fitted model
type Coefficient struct {
	Term     string  `json:"term"`
	Estimate float64 `json:"estimate"`
	StdError float64 `json:"std_error"`
	TValue   float64 `json:"t_value"`
	PValue   float64 `json:"p_value"`
	ConfLow  float64 `json:"conf_low"`
	ConfHigh float64 `json:"conf_high"`
}

// VIF is the variance inflation factor of one predictor. Unbounded marks an
// exactly collinear predictor; Value is +Inf in that case.
type VIF struct {
	Variable  string  `json:"variable"`
	Value     float64 `json:"vif"`
	Unbounded bool    `json:"unbounded,omitempty"`
}

// RegressionResult is the immutable outcome of one OLS fit
type RegressionResult struct {
	Model        ModelSpec     `json:"model"`
	Coefficients []Coefficient `json:"coefficients"` // intercept first, then predictors in spec order
	RSquared     float64       `json:"r_squared"`
	AdjRSquared  float64       `json:"adj_r_squared"`
	NObs         int           `json:"n_obs"`
	DFResidual   int           `json:"df_residual"`
	Sigma        float64       `json:"sigma"` // residual standard error
	FStatistic   float64       `json:"f_statistic"`
	FPValue      float64       `json:"f_p_value"`
	VIFs         []VIF         `json:"vifs"`
	Countries    []string      `json:"countries"` // rows used, in table order

	// Diagnostics holds problems that did not stop the fit, such as an
	// InfiniteVIFError for each unbounded VIF
	Diagnostics []error `json:"-"`
}

// Coefficient looks a term up by name
func (r *RegressionResult) Coefficient(term string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Term == term {
			return c, true
		}
	}
	return Coefficient{}, false
}

// HasUnboundedVIF reports whether any predictor is exactly collinear with the others
func (r *RegressionResult) HasUnboundedVIF() bool {
	for _, v := range r.VIFs {
		if v.Unbounded {
			return true
		}
	}
	return false
}

// ModelOutcome pairs a spec with either its result or the error that stopped it.
// Exactly one of Result and Err is set.
type ModelOutcome struct {
	Spec   ModelSpec
	Result *RegressionResult
	Err    error
}

// Failed reports whether the fit failed
func (o ModelOutcome) Failed() bool { return o.Err != nil }

// ============================================================================
// DESCRIPTIVES
// ============================================================================

// Descriptive summarizes the non-missing values of one variable
type Descriptive struct {
	Variable string  `json:"variable"`
	Label    string  `json:"label"`
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Min      float64 `json:"min"`
	Median   float64 `json:"median"`
	Max      float64 `json:"max"`
}

// CorrelationMatrix is a square Pearson matrix; Values[i][j] pairs Labels[i] with Labels[j]
type CorrelationMatrix struct {
	Variables []string    `json:"variables"`
	Labels    []string    `json:"labels"`
	Values    [][]float64 `json:"values"`
	N         int         `json:"n"` // listwise-complete rows used
}

// At returns the correlation of variables a and b, NaN when either is absent
func (m CorrelationMatrix) At(a, b string) float64 {
	i, j := -1, -1
	for k, v := range m.Variables {
		if v == a {
			i = k
		}
		if v == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return m.Values[i][j]
}

// ============================================================================
// SIGNIFICANCE
// ============================================================================

// SignificanceCode maps a p-value to the conventional star marker:
// p<0.001 "***", p<0.01 "**", p<0.05 "*", p<0.10 ".", otherwise "".
func SignificanceCode(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	case p < 0.10:
		return "."
	default:
		return ""
	}
}

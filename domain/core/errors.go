package core

import (
	"errors"
	"fmt"
)

// Stage errors - every typed pipeline error matches exactly one of these via errors.Is
var (
	ErrMerge      = errors.New("merge failed")
	ErrTransform  = errors.New("transform failed")
	ErrRegression = errors.New("regression failed")

	// Lookup errors shared by transform and regression stages
	ErrColumnNotFound = errors.New("column not found")
	ErrNonNumeric     = errors.New("column is not numeric")
)

// DuplicateKeyError reports a join key that appears twice in one source table.
type DuplicateKeyError struct {
	Table string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in table %s", e.Key, e.Table)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrMerge }

// MissingKeyError reports a row whose join key cell is empty.
type MissingKeyError struct {
	Table string
	Row   int
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("empty key in table %s at row %d", e.Table, e.Row)
}

func (e *MissingKeyError) Unwrap() error { return ErrMerge }

// ColumnConflictError reports a column name that would be defined twice.
// Table names the source (or transform target owner) that introduced the clash.
// Stage is the sentinel the error matches; nil means ErrMerge.
type ColumnConflictError struct {
	Table  string
	Column string
	Stage  error
}

func (e *ColumnConflictError) Error() string {
	return fmt.Sprintf("column %q from %s already exists", e.Column, e.Table)
}

func (e *ColumnConflictError) Unwrap() error {
	if e.Stage != nil {
		return e.Stage
	}
	return ErrMerge
}

// NonPositiveValueError reports a log transform input that is not strictly positive.
type NonPositiveValueError struct {
	Column string
	Key    string
	Value  float64
	Offset float64
}

func (e *NonPositiveValueError) Error() string {
	if e.Offset != 0 {
		return fmt.Sprintf("log(%s + %g) undefined for %s: value %g", e.Column, e.Offset, e.Key, e.Value)
	}
	return fmt.Sprintf("log(%s) undefined for %s: value %g", e.Column, e.Key, e.Value)
}

func (e *NonPositiveValueError) Unwrap() error { return ErrTransform }

// DivisionByZeroError reports a zero denominator in a ratio transform.
type DivisionByZeroError struct {
	Column string
	Key    string
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("denominator %s is zero for %s", e.Column, e.Key)
}

func (e *DivisionByZeroError) Unwrap() error { return ErrTransform }

// ColumnNotFoundError reports a reference to a column the table does not have.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("%v: %q in table %s", ErrColumnNotFound, e.Column, e.Table)
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }

// NonNumericColumnError reports a text column used where numbers are required.
type NonNumericColumnError struct {
	Table  string
	Column string
}

func (e *NonNumericColumnError) Error() string {
	return fmt.Sprintf("%v: %q in table %s", ErrNonNumeric, e.Column, e.Table)
}

func (e *NonNumericColumnError) Unwrap() error { return ErrNonNumeric }

// RankDeficientError reports a design matrix without full column rank.
type RankDeficientError struct {
	Model string
	Rank  int
	K     int
}

func (e *RankDeficientError) Error() string {
	return fmt.Sprintf("model %s: design matrix rank %d < %d parameters (perfect collinearity)", e.Model, e.Rank, e.K)
}

func (e *RankDeficientError) Unwrap() error { return ErrRegression }

// InsufficientObservationsError reports a fit with no residual degrees of freedom.
type InsufficientObservationsError struct {
	Model string
	N     int
	K     int
}

func (e *InsufficientObservationsError) Error() string {
	return fmt.Sprintf("model %s: %d complete observations for %d parameters", e.Model, e.N, e.K)
}

func (e *InsufficientObservationsError) Unwrap() error { return ErrRegression }

// InfiniteVIFError reports a predictor exactly explained by the other predictors.
type InfiniteVIFError struct {
	Model    string
	Variable string
}

func (e *InfiniteVIFError) Error() string {
	return fmt.Sprintf("model %s: VIF of %s is unbounded (auxiliary R² = 1)", e.Model, e.Variable)
}

func (e *InfiniteVIFError) Unwrap() error { return ErrRegression }

// Error checking helpers
func IsMergeError(err error) bool {
	return errors.Is(err, ErrMerge)
}

func IsTransformError(err error) bool {
	return errors.Is(err, ErrTransform)
}

func IsRegressionError(err error) bool {
	return errors.Is(err, ErrRegression)
}

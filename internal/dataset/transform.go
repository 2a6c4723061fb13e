package dataset

import (
	"fmt"
	"math"

	"distreg/domain/core"
	"distreg/domain/dataset"
)

// TransformSpec derives one new column from columns already in the table.
// Missing inputs always produce a missing output; they are never treated as zero.
type TransformSpec interface {
	Target() string
	Describe() string
	apply(t *dataset.Table) (*dataset.Column, error)
}

// Log computes log(Field + Offset). Offset is the study's documented
// additive constant for outcomes with values at or near zero (e.g. 0.0001
// for capability shares); leave it zero to require strictly positive input.
type Log struct {
	Field  string
	As     string
	Offset float64
}

func (l Log) Target() string { return l.As }

func (l Log) Describe() string {
	if l.Offset != 0 {
		return fmt.Sprintf("%s = log(%s + %g)", l.As, l.Field, l.Offset)
	}
	return fmt.Sprintf("%s = log(%s)", l.As, l.Field)
}

func (l Log) apply(t *dataset.Table) (*dataset.Column, error) {
	vals, valid, err := t.Numbers(l.Field)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		x := v + l.Offset
		if x <= 0 {
			return nil, &core.NonPositiveValueError{Column: l.Field, Key: t.KeyAt(i), Value: v, Offset: l.Offset}
		}
		out[i] = math.Log(x)
	}
	return dataset.NewNumberColumn(l.As, out, valid), nil
}

// Ratio computes Numerator / Denominator
type Ratio struct {
	Numerator   string
	Denominator string
	As          string
}

func (r Ratio) Target() string { return r.As }

func (r Ratio) Describe() string {
	return fmt.Sprintf("%s = %s / %s", r.As, r.Numerator, r.Denominator)
}

func (r Ratio) apply(t *dataset.Table) (*dataset.Column, error) {
	num, numOK, err := t.Numbers(r.Numerator)
	if err != nil {
		return nil, err
	}
	den, denOK, err := t.Numbers(r.Denominator)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(num))
	valid := make([]bool, len(num))
	for i := range num {
		if !numOK[i] || !denOK[i] {
			continue
		}
		if den[i] == 0 {
			return nil, &core.DivisionByZeroError{Column: r.Denominator, Key: t.KeyAt(i)}
		}
		out[i] = num[i] / den[i]
		valid[i] = true
	}
	return dataset.NewNumberColumn(r.As, out, valid), nil
}

// Scale multiplies Field by Factor, e.g. 0.001 for meters to kilometers
type Scale struct {
	Field  string
	As     string
	Factor float64
}

func (s Scale) Target() string { return s.As }

func (s Scale) Describe() string {
	return fmt.Sprintf("%s = %s * %g", s.As, s.Field, s.Factor)
}

func (s Scale) apply(t *dataset.Table) (*dataset.Column, error) {
	vals, valid, err := t.Numbers(s.Field)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		if valid[i] {
			out[i] = v * s.Factor
		}
	}
	return dataset.NewNumberColumn(s.As, out, valid), nil
}

// YearsSince computes ReferenceYear - Field, e.g. years of independence
type YearsSince struct {
	Field         string
	As            string
	ReferenceYear int
}

func (y YearsSince) Target() string { return y.As }

func (y YearsSince) Describe() string {
	return fmt.Sprintf("%s = %d - %s", y.As, y.ReferenceYear, y.Field)
}

func (y YearsSince) apply(t *dataset.Table) (*dataset.Column, error) {
	vals, valid, err := t.Numbers(y.Field)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		if v > float64(y.ReferenceYear) {
			return nil, fmt.Errorf("%w: %s for %s is %g, after reference year %d",
				core.ErrTransform, y.Field, t.KeyAt(i), v, y.ReferenceYear)
		}
		out[i] = float64(y.ReferenceYear) - v
	}
	return dataset.NewNumberColumn(y.As, out, valid), nil
}

// Transform applies specs in order. A spec may read the target of an earlier
// one. Targets must be new column names; an existing column is never replaced.
func Transform(t *dataset.Table, specs ...TransformSpec) (*dataset.Table, error) {
	out := t
	for _, spec := range specs {
		if out.HasColumn(spec.Target()) {
			return nil, &core.ColumnConflictError{Table: out.Name(), Column: spec.Target(), Stage: core.ErrTransform}
		}
		col, err := spec.apply(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Describe(), err)
		}
		if out, err = out.WithColumn(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

package dataset

import (
	"fmt"
	"strconv"

	"distreg/domain/core"
)

// DefaultKey is the join key every country table carries
const DefaultKey = "country"

// Kind is the storage type of a column
type Kind int

const (
	KindText Kind = iota
	KindNumber
)

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "text"
}

// Column is an immutable, named, row-aligned vector with an explicit
// validity flag per cell. A missing cell is never read as zero.
type Column struct {
	name  string
	kind  Kind
	text  []string
	nums  []float64
	valid []bool
}

// NewTextColumn copies values into a text column. A nil valid slice marks
// every non-empty value as present.
func NewTextColumn(name string, values []string, valid []bool) *Column {
	c := &Column{
		name:  name,
		kind:  KindText,
		text:  append([]string(nil), values...),
		valid: make([]bool, len(values)),
	}
	for i, v := range values {
		if valid != nil {
			c.valid[i] = valid[i]
		} else {
			c.valid[i] = v != ""
		}
	}
	return c
}

// NewNumberColumn copies values into a numeric column. A nil valid slice
// marks every value as present.
func NewNumberColumn(name string, values []float64, valid []bool) *Column {
	c := &Column{
		name:  name,
		kind:  KindNumber,
		nums:  append([]float64(nil), values...),
		valid: make([]bool, len(values)),
	}
	for i := range values {
		c.valid[i] = valid == nil || valid[i]
	}
	return c
}

func (c *Column) Name() string { return c.name }
func (c *Column) Kind() Kind   { return c.kind }
func (c *Column) Len() int     { return len(c.valid) }

// Valid reports whether row i holds a value
func (c *Column) Valid(i int) bool { return c.valid[i] }

// Float returns the numeric value of row i; ok is false for missing cells and text columns.
func (c *Column) Float(i int) (v float64, ok bool) {
	if c.kind != KindNumber || !c.valid[i] {
		return 0, false
	}
	return c.nums[i], true
}

// Text returns the cell rendered as text; missing cells render as "".
func (c *Column) Text(i int) string {
	if !c.valid[i] {
		return ""
	}
	if c.kind == KindNumber {
		return strconv.FormatFloat(c.nums[i], 'g', -1, 64)
	}
	return c.text[i]
}

// Missing counts rows without a value
func (c *Column) Missing() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Renamed returns the same data under another name
func (c *Column) Renamed(name string) *Column {
	out := *c
	out.name = name
	return &out
}

// Gather builds a column whose row j holds row idx[j] of c; a negative index
// yields a missing cell. Used by joins and row filters.
func (c *Column) Gather(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind, valid: make([]bool, len(idx))}
	if c.kind == KindNumber {
		out.nums = make([]float64, len(idx))
	} else {
		out.text = make([]string, len(idx))
	}
	for j, i := range idx {
		if i < 0 || !c.valid[i] {
			continue
		}
		out.valid[j] = true
		if c.kind == KindNumber {
			out.nums[j] = c.nums[i]
		} else {
			out.text[j] = c.text[i]
		}
	}
	return out
}

// Table is an ordered list of named columns of equal length, keyed by a
// text column. Tables are values: every operation returns a new table and
// never mutates a column another table may share.
type Table struct {
	name    string
	key     string
	columns []*Column
	byName  map[string]int
}

// NewTable validates and assembles a table. The key column must be present
// and of text kind.
func NewTable(name, key string, columns ...*Column) (*Table, error) {
	t := &Table{
		name:    name,
		key:     key,
		columns: make([]*Column, 0, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	for _, col := range columns {
		if len(t.columns) > 0 && col.Len() != t.columns[0].Len() {
			return nil, fmt.Errorf("table %s: column %q has %d rows, expected %d",
				name, col.Name(), col.Len(), t.columns[0].Len())
		}
		if _, exists := t.byName[col.Name()]; exists {
			return nil, &core.ColumnConflictError{Table: name, Column: col.Name()}
		}
		t.byName[col.Name()] = len(t.columns)
		t.columns = append(t.columns, col)
	}

	keyCol, ok := t.Column(key)
	if !ok {
		return nil, &core.ColumnNotFoundError{Table: name, Column: key}
	}
	if keyCol.Kind() != KindText {
		return nil, fmt.Errorf("table %s: key column %q must be text", name, key)
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }
func (t *Table) Key() string  { return t.key }
func (t *Table) Width() int   { return len(t.columns) }

// Len returns the number of rows
func (t *Table) Len() int {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].Len()
}

// Columns returns the columns in order
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

// ColumnNames returns column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name()
	}
	return names
}

// Column looks a column up by name
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// HasColumn reports whether name is a column of t
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// KeyAt returns the key of row i
func (t *Table) KeyAt(i int) string {
	col, _ := t.Column(t.key)
	return col.Text(i)
}

// Keys returns the key column values in row order
func (t *Table) Keys() []string {
	keys := make([]string, t.Len())
	for i := range keys {
		keys[i] = t.KeyAt(i)
	}
	return keys
}

// Numbers returns a copy of a numeric column with its validity flags
func (t *Table) Numbers(name string) ([]float64, []bool, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, nil, &core.ColumnNotFoundError{Table: t.name, Column: name}
	}
	if col.Kind() != KindNumber {
		return nil, nil, &core.NonNumericColumnError{Table: t.name, Column: name}
	}
	return append([]float64(nil), col.nums...), append([]bool(nil), col.valid...), nil
}

// WithColumn returns a new table with col appended. An existing column of the
// same name is a conflict; nothing is overwritten.
func (t *Table) WithColumn(col *Column) (*Table, error) {
	if t.HasColumn(col.Name()) {
		return nil, &core.ColumnConflictError{Table: t.name, Column: col.Name()}
	}
	if col.Len() != t.Len() {
		return nil, fmt.Errorf("table %s: column %q has %d rows, expected %d", t.name, col.Name(), col.Len(), t.Len())
	}
	return NewTable(t.name, t.key, append(t.Columns(), col)...)
}

// Renamed returns the same columns under another table name
func (t *Table) Renamed(name string) *Table {
	out, _ := NewTable(name, t.key, t.columns...)
	return out
}

// Rows returns a table holding the given rows of t in the given order
func (t *Table) Rows(idx []int) *Table {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.Gather(idx)
	}
	out, _ := NewTable(t.name, t.key, cols...)
	return out
}

// Filter keeps the rows for which keep returns true, preserving order
func (t *Table) Filter(keep func(row int) bool) *Table {
	idx := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Rows(idx)
}

// Records renders the table as a header row followed by text rows
func (t *Table) Records() [][]string {
	records := make([][]string, 0, t.Len()+1)
	records = append(records, t.ColumnNames())
	for i := 0; i < t.Len(); i++ {
		row := make([]string, len(t.columns))
		for j, c := range t.columns {
			row[j] = c.Text(i)
		}
		records = append(records, row)
	}
	return records
}

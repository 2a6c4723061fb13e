package dataset

import (
	"distreg/domain/core"
	"distreg/domain/dataset"
)

// Selection reports the rows SelectComplete removed
type Selection struct {
	Kept        int      `json:"kept"`
	Dropped     int      `json:"dropped"`
	DroppedKeys []string `json:"dropped_keys,omitempty"`
}

// SelectComplete drops every row missing a value in any required field.
// The drop count is always returned so callers can report it.
func SelectComplete(t *dataset.Table, required []string) (*dataset.Table, Selection, error) {
	cols := make([]*dataset.Column, 0, len(required))
	for _, name := range required {
		col, ok := t.Column(name)
		if !ok {
			return nil, Selection{}, &core.ColumnNotFoundError{Table: t.Name(), Column: name}
		}
		cols = append(cols, col)
	}

	var sel Selection
	out := t.Filter(func(row int) bool {
		for _, col := range cols {
			if !col.Valid(row) {
				sel.DroppedKeys = append(sel.DroppedKeys, t.KeyAt(row))
				return false
			}
		}
		return true
	})
	sel.Kept = out.Len()
	sel.Dropped = len(sel.DroppedKeys)
	return out, sel, nil
}

// Package dataset assembles the per-country analysis table: it left-joins
// independently sourced tables onto the base distance table, derives
// log/ratio/scaled variables, and filters incomplete rows.
//
// Every operation returns a new table. Inputs are never modified, so a
// stage can hand its output to the next one without defensive copies.
package dataset

import (
	"fmt"

	"distreg/domain/core"
	"distreg/domain/dataset"
)

// MergeConfig holds configuration for merge operations
type MergeConfig struct {
	OutputName       string                                 // Name of the merged table
	ProgressCallback func(progress float64, message string) // Progress reporting
}

// JoinReport describes what one secondary table contributed
type JoinReport struct {
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	Matched   int      `json:"matched"`
	Unmatched []string `json:"unmatched,omitempty"` // keys absent from the base table, dropped
}

// MergeReport contains the result of a merge operation
type MergeReport struct {
	Rows    int          `json:"rows"`
	Columns int          `json:"columns"`
	Joins   []JoinReport `json:"joins"`
}

// Merger joins secondary tables onto a base table
type Merger struct {
	config *MergeConfig
}

// NewMerger creates a new dataset merger
func NewMerger(config *MergeConfig) *Merger {
	if config == nil {
		config = &MergeConfig{}
	}
	if config.OutputName == "" {
		config.OutputName = "merged"
	}
	return &Merger{config: config}
}

// Merge joins with the default configuration
func Merge(base *dataset.Table, secondaries ...*dataset.Table) (*dataset.Table, *MergeReport, error) {
	return NewMerger(nil).Merge(base, secondaries...)
}

// Merge performs successive left outer joins of secondaries onto base, in
// order, by key. The base table is authoritative for the row set: the output
// has exactly base.Len() rows, and secondary keys without a base row are
// reported but never added.
func (m *Merger) Merge(base *dataset.Table, secondaries ...*dataset.Table) (*dataset.Table, *MergeReport, error) {
	m.reportProgress(0, fmt.Sprintf("Indexing base table %s", base.Name()))

	baseIndex, err := indexKeys(base)
	if err != nil {
		return nil, nil, err
	}
	baseKeys := base.Keys()

	merged := base.Renamed(m.config.OutputName)
	report := &MergeReport{Rows: base.Len()}

	for n, sec := range secondaries {
		m.reportProgress(float64(n)/float64(len(secondaries))*100, fmt.Sprintf("Joining %s", sec.Name()))

		secIndex, err := indexKeys(sec)
		if err != nil {
			return nil, nil, err
		}

		rows := make([]int, len(baseKeys))
		matched := 0
		for i, key := range baseKeys {
			row, ok := secIndex[key]
			if !ok {
				rows[i] = -1
				continue
			}
			rows[i] = row
			matched++
		}

		join := JoinReport{Table: sec.Name(), Matched: matched}
		cols := make([]*dataset.Column, 0, sec.Width())
		for _, col := range sec.Columns() {
			if col.Name() == sec.Key() {
				continue
			}
			if merged.HasColumn(col.Name()) {
				return nil, nil, &core.ColumnConflictError{Table: sec.Name(), Column: col.Name()}
			}
			cols = append(cols, col.Gather(rows))
			join.Columns = append(join.Columns, col.Name())
		}
		for _, col := range cols {
			if merged, err = merged.WithColumn(col); err != nil {
				return nil, nil, err
			}
		}

		for _, key := range sec.Keys() {
			if _, ok := baseIndex[key]; !ok {
				join.Unmatched = append(join.Unmatched, key)
			}
		}
		report.Joins = append(report.Joins, join)
	}

	report.Columns = merged.Width()
	m.reportProgress(100, "Merge completed")
	return merged, report, nil
}

// indexKeys maps each key to its row, rejecting empty and duplicate keys
func indexKeys(t *dataset.Table) (map[string]int, error) {
	index := make(map[string]int, t.Len())
	for i, key := range t.Keys() {
		if key == "" {
			return nil, &core.MissingKeyError{Table: t.Name(), Row: i + 1}
		}
		if _, dup := index[key]; dup {
			return nil, &core.DuplicateKeyError{Table: t.Name(), Key: key}
		}
		index[key] = i
	}
	return index, nil
}

func (m *Merger) reportProgress(progress float64, message string) {
	if m.config.ProgressCallback != nil {
		m.config.ProgressCallback(progress, message)
	}
}

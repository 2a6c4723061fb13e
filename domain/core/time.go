package core

import (
	"fmt"
	"time"
)

// SortableLayout is fixed-width UTC with nanoseconds, so formatted
// timestamps order chronologically as plain text
const SortableLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a UTC instant recorded on run manifests
type Timestamp time.Time

// Now returns the current instant in UTC
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Sortable renders t in SortableLayout
func (t Timestamp) Sortable() string {
	return t.Time().UTC().Format(SortableLayout)
}

// ParseSortable reads a timestamp written by Sortable
func ParseSortable(s string) (Timestamp, error) {
	tm, err := time.Parse(SortableLayout, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Timestamp(tm), nil
}

func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

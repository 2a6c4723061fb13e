package ports

import (
	"context"

	"distreg/domain/dataset"
)

// TableReader loads one country table from a source
type TableReader interface {
	ReadTable(ctx context.Context, name string) (*dataset.Table, error)
}

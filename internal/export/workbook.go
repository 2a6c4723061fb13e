package export

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook writes every artifact of r as a sheet of one .xlsx file.
// Finite numbers are stored as numeric cells, everything else as text.
func WriteWorkbook(path string, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range r.sheets() {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return err
		}

		for rowIdx, rec := range s.records {
			for colIdx, v := range rec {
				cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(s.name, cell, cellValue(v, rowIdx == 0)); err != nil {
					return fmt.Errorf("sheet %s: %w", s.name, err)
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func cellValue(v string, header bool) interface{} {
	if header {
		return v
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return v
	}
	return n
}

package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"distreg/domain/dataset"
	"distreg/internal"
	"distreg/internal/errors"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files into country tables
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	config   ReaderConfig
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, config ReaderConfig, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if config.Key == "" {
		config.Key = dataset.DefaultKey
	}
	if config.MissingTokens == nil {
		config.MissingTokens = DefaultReaderConfig().MissingTokens
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &DataReader{filePath: filePath, fileType: fileType, config: config, logger: logger}
}

// ReadTable reads the file and types its columns. The key column is renamed
// to "country" and its values are trimmed and upper-cased.
func (r *DataReader) ReadTable(ctx context.Context, name string) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := r.ReadRaw()
	if err != nil {
		return nil, err
	}
	table, err := BuildTable(name, raw, r.config)
	if err != nil {
		return nil, errors.Wrapf(errors.WithCode(errors.CodeInvalidInput, err), "table %s (%s)", name, r.filePath)
	}
	r.logger.Debug("[DataReader] %s: %d rows, %d columns", name, table.Len(), table.Width())
	return table, nil
}

// ReadRaw reads the file as trimmed strings
func (r *DataReader) ReadRaw() (*RawData, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.IOError(r.filePath, err)
	}

	var rows [][]string
	var err error
	start := time.Now()
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	r.logger.Debug("[DataReader] %s read in %.2fms (%d rows)", r.filePath, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s has no header row", r.filePath))
	}
	return processRows(rows), nil
}

// readExcelRows reads the configured sheet, or the first one. Raw cell values
// keep full numeric precision regardless of display format.
func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows trims cells, strips a UTF-8 byte order mark and pads short rows
func processRows(rows [][]string) *RawData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make([]string, len(headers))
		blank := true
		for j := 0; j < len(headers) && j < len(row); j++ {
			rec[j] = strings.TrimSpace(row[j])
			blank = blank && rec[j] == ""
		}
		if blank {
			continue
		}
		data = append(data, rec)
	}
	return &RawData{Headers: headers, Rows: data}
}

// BuildTable types each column: a column whose every non-missing cell parses
// as a number is numeric, anything else is text. The key column is always
// text and becomes "country".
func BuildTable(name string, raw *RawData, config ReaderConfig) (*dataset.Table, error) {
	missing := make(map[string]bool, len(config.MissingTokens))
	for _, tok := range config.MissingTokens {
		missing[tok] = true
	}
	key := config.Key
	if key == "" {
		key = dataset.DefaultKey
	}

	keyFound := false
	cols := make([]*dataset.Column, 0, len(raw.Headers))
	for j, header := range raw.Headers {
		if header == "" {
			return nil, fmt.Errorf("column %d has an empty header", j+1)
		}
		cells := make([]string, len(raw.Rows))
		for i, row := range raw.Rows {
			cells[i] = row[j]
		}

		if header == key {
			keyFound = true
			for i, c := range cells {
				if missing[c] {
					cells[i] = ""
				}
				cells[i] = strings.ToUpper(cells[i])
			}
			cols = append(cols, dataset.NewTextColumn(dataset.DefaultKey, cells, nil))
			continue
		}
		if header == dataset.DefaultKey {
			return nil, fmt.Errorf("column %q is reserved for the key; rename it or use it as the key", header)
		}
		cols = append(cols, typeColumn(header, cells, missing))
	}
	if !keyFound {
		return nil, fmt.Errorf("key column %q not found in %v", key, raw.Headers)
	}
	return dataset.NewTable(name, dataset.DefaultKey, cols...)
}

func typeColumn(name string, cells []string, missing map[string]bool) *dataset.Column {
	values := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	numeric := true
	for i, c := range cells {
		if missing[c] {
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			numeric = false
			break
		}
		values[i], valid[i] = v, true
	}
	if numeric {
		return dataset.NewNumberColumn(name, values, valid)
	}

	textValid := make([]bool, len(cells))
	for i, c := range cells {
		textValid[i] = !missing[c]
	}
	return dataset.NewTextColumn(name, cells, textValid)
}

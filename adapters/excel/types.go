package excel

// RawData is a sheet or CSV file as trimmed strings, header first
type RawData struct {
	Headers []string
	Rows    [][]string
}

package excel

import "distreg/domain/dataset"

// ReaderConfig controls how a source file becomes a table
type ReaderConfig struct {
	Key           string   `json:"key"`            // source column holding the country code
	Sheet         string   `json:"sheet"`          // xlsx sheet; empty reads the first sheet
	MissingTokens []string `json:"missing_tokens"` // cell values read as missing
}

// DefaultReaderConfig reads a "country" key column and treats the usual
// statistical-agency placeholders as missing
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Key:           dataset.DefaultKey,
		MissingTokens: []string{"", "NA", "N/A", "NaN", ".."},
	}
}

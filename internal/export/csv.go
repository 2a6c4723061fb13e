package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"distreg/domain/dataset"
	"distreg/domain/stats"
)

// WriteDescriptives writes variable,n,mean,sd,min,median,max
func WriteDescriptives(w io.Writer, rows []stats.Descriptive) error {
	return writeRecords(w, descriptiveRecords(rows))
}

// WriteCorrelations writes the square matrix labelled on both axes
func WriteCorrelations(w io.Writer, m stats.CorrelationMatrix) error {
	return writeRecords(w, correlationRecords(m))
}

// WriteRegressionResults writes one row per coefficient of every fitted model
func WriteRegressionResults(w io.Writer, outcomes []stats.ModelOutcome) error {
	return writeRecords(w, regressionRecords(outcomes))
}

// WriteModelFit writes model,r_squared,adj_r_squared,n_obs
func WriteModelFit(w io.Writer, outcomes []stats.ModelOutcome) error {
	return writeRecords(w, modelFitRecords(outcomes))
}

// WriteVIF writes the variance inflation factors; unbounded values render as Inf
func WriteVIF(w io.Writer, outcomes []stats.ModelOutcome) error {
	return writeRecords(w, vifRecords(outcomes))
}

// WriteFailedModels writes model,error for every model that could not be fitted
func WriteFailedModels(w io.Writer, outcomes []stats.ModelOutcome) error {
	return writeRecords(w, failedRecords(outcomes))
}

// WriteTable writes a data table, missing cells as NA
func WriteTable(w io.Writer, t *dataset.Table) error {
	return writeRecords(w, tableRecords(t))
}

// WriteAll writes every artifact of r as <name>.csv under dir, creating dir
// if needed, and returns the paths written in order.
func WriteAll(dir string, r Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var paths []string
	for _, s := range r.sheets() {
		path := filepath.Join(dir, s.name+".csv")
		if err := writeFile(path, s.records); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeRecords(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// Package testkit generates deterministic synthetic country data shaped like
// the real sources (COW material capabilities, World Bank indicators, a
// geography table) for tests and demos.
package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"distreg/domain/dataset"
	"distreg/internal/geo"
)

// Table names produced by the kit
const (
	TableCOW       = "cow_nmc"
	TableWorldBank = "world_bank"
	TableGeography = "geography"
)

// True coefficients of the generating model
// log_cinc = Intercept + DistanceEffect*log_distance + IncomeEffect*log_gdp_pc + noise
const (
	Intercept      = -1.0
	DistanceEffect = -0.8
	IncomeEffect   = 0.6
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	seed     int64
	capitals []geo.Capital
	noise    float64
}

// NewTestKit creates a kit over the built-in capitals. Equal seeds give
// identical tables.
func NewTestKit(seed int64) *TestKit {
	return &TestKit{seed: seed, capitals: geo.Capitals(), noise: 0.3}
}

// WithNoise sets the residual standard deviation of log CINC
func (k *TestKit) WithNoise(sd float64) *TestKit {
	out := *k
	out.noise = sd
	return &out
}

// Tables is the synthetic source set
type Tables struct {
	COW       *dataset.Table // cinc, milex; Cuba absent, one key not in the gazetteer
	WorldBank *dataset.Table // gdp, population; Venezuela gdp missing
	Geography *dataset.Table // land_area_m2, independence_year
}

// Generate draws every value from one seeded source in capital order
func (k *TestKit) Generate() (*Tables, error) {
	rng := rand.New(rand.NewSource(k.seed))

	var (
		cowKeys            []string
		cinc, milex        []float64
		wbKeys             []string
		gdp, pop           []float64
		gdpValid           []bool
		geoKeys            []string
		area, independence []float64
	)

	for _, c := range k.capitals {
		dist := geo.Distance(c.Point, geo.Washington)
		logGDPpc := 8.5 + 0.5*rng.NormFloat64()
		logPop := 16 + rng.NormFloat64()
		logCINC := Intercept + DistanceEffect*math.Log(dist) + IncomeEffect*logGDPpc + k.noise*rng.NormFloat64()

		if c.Country != "CUB" {
			cowKeys = append(cowKeys, c.Country)
			cinc = append(cinc, math.Exp(logCINC))
			milex = append(milex, math.Round(math.Exp(logCINC+18)))
		}

		wbKeys = append(wbKeys, c.Country)
		gdp = append(gdp, math.Exp(logGDPpc+logPop))
		gdpValid = append(gdpValid, c.Country != "VEN")
		pop = append(pop, math.Round(math.Exp(logPop)))

		geoKeys = append(geoKeys, c.Country)
		area = append(area, math.Round(math.Exp(25+rng.NormFloat64())))
		independence = append(independence, float64(1804+rng.Intn(100)))
	}

	// a COW state outside the study region: reported as unmatched by the merge
	cowKeys = append(cowKeys, "USA")
	cinc = append(cinc, 0.14)
	milex = append(milex, 7.3e8)

	cow, err := dataset.NewTable(TableCOW, dataset.DefaultKey,
		dataset.NewTextColumn(dataset.DefaultKey, cowKeys, nil),
		dataset.NewNumberColumn("cinc", cinc, nil),
		dataset.NewNumberColumn("milex", milex, nil),
	)
	if err != nil {
		return nil, err
	}
	wb, err := dataset.NewTable(TableWorldBank, dataset.DefaultKey,
		dataset.NewTextColumn(dataset.DefaultKey, wbKeys, nil),
		dataset.NewNumberColumn("gdp", gdp, gdpValid),
		dataset.NewNumberColumn("population", pop, nil),
	)
	if err != nil {
		return nil, err
	}
	geography, err := dataset.NewTable(TableGeography, dataset.DefaultKey,
		dataset.NewTextColumn(dataset.DefaultKey, geoKeys, nil),
		dataset.NewNumberColumn("land_area_m2", area, nil),
		dataset.NewNumberColumn("independence_year", independence, nil),
	)
	if err != nil {
		return nil, err
	}
	return &Tables{COW: cow, WorldBank: wb, Geography: geography}, nil
}

// WriteCSV writes the tables under dir as <name>.csv and returns the paths
// by table name. Missing World Bank cells are written as "..".
func (k *TestKit) WriteCSV(dir string) (map[string]string, error) {
	tables, err := k.Generate()
	if err != nil {
		return nil, err
	}
	paths := map[string]string{}
	for _, t := range []*dataset.Table{tables.COW, tables.WorldBank, tables.Geography} {
		records := t.Records()
		if t.Name() == TableWorldBank {
			for _, rec := range records[1:] {
				for j, cell := range rec {
					if cell == "" {
						rec[j] = ".."
					}
				}
			}
		}
		path := filepath.Join(dir, t.Name()+".csv")
		if err := writeCSV(path, records); err != nil {
			return nil, err
		}
		paths[t.Name()] = path
	}
	return paths, nil
}

// WriteStudy writes the CSV sources and a study definition returning the
// study path. Its third model repeats income on another scale and cannot be
// fitted.
func (k *TestKit) WriteStudy(dir string) (string, error) {
	if _, err := k.WriteCSV(dir); err != nil {
		return "", err
	}
	study := strings.TrimSpace(fmt.Sprintf(`
name: synthetic_latam
inputs:
  secondaries:
    - {name: %[1]s, path: %[1]s.csv}
    - {name: %[2]s, path: %[2]s.csv}
    - {name: %[3]s, path: %[3]s.csv}
distance:
  gazetteer: true
transforms:
  - {op: log, field: distance_km, as: log_distance}
  - {op: log, field: cinc, as: log_cinc}
  - {op: ratio, numerator: gdp, denominator: population, as: gdp_pc}
  - {op: log, field: gdp_pc, as: log_gdp_pc}
  - {op: scale, field: gdp_pc, as: gdp_pc_thousands, factor: 0.001}
  - {op: log, field: gdp_pc_thousands, as: log_gdp_pc_thousands}
  - {op: log, field: population, as: log_population}
  - {op: scale, field: land_area_m2, as: land_area_km2, factor: 0.000001}
  - {op: log, field: land_area_km2, as: log_land_area}
  - {op: years_since, field: independence_year, as: years_independent, reference_year: 2020}
required: [log_cinc, log_distance, log_gdp_pc]
labels:
  log_cinc: Log CINC
  log_distance: Log distance
describe: [log_cinc, log_distance, log_gdp_pc, years_independent]
correlate: [log_cinc, log_distance, log_gdp_pc]
models:
  - {name: m1, label: Baseline, outcome: log_cinc, predictors: [log_distance, log_gdp_pc]}
  - {name: m2, label: Size controls, outcome: log_cinc, predictors: [log_distance, log_gdp_pc, log_population, log_land_area]}
  - {name: m3, label: Income in thousands, outcome: log_cinc, predictors: [log_distance, log_gdp_pc, log_gdp_pc_thousands]}
`, TableCOW, TableWorldBank, TableGeography)) + "\n"

	path := filepath.Join(dir, "study.yaml")
	if err := os.WriteFile(path, []byte(study), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

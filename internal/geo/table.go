package geo

import (
	"fmt"

	"distreg/domain/core"
	"distreg/domain/dataset"
)

// Base distance table columns
const (
	ColCapital  = "capital"
	ColLat      = "lat"
	ColLon      = "lon"
	ColDistance = "distance_km"
)

// DistanceTable builds the base table (country, capital, lat, lon, distance_km)
// for the given capitals measured from ref.
func DistanceTable(name string, ref Point, capitals []Capital) (*dataset.Table, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("reference point: %w", err)
	}
	n := len(capitals)
	countries := make([]string, n)
	names := make([]string, n)
	lats := make([]float64, n)
	lons := make([]float64, n)
	dists := make([]float64, n)
	for i, c := range capitals {
		if err := c.Point.Validate(); err != nil {
			return nil, fmt.Errorf("capital of %s: %w", c.Country, err)
		}
		countries[i] = c.Country
		names[i] = c.Name
		lats[i] = c.Point.Lat
		lons[i] = c.Point.Lon
		dists[i] = Distance(c.Point, ref)
	}
	return dataset.NewTable(name, dataset.DefaultKey,
		dataset.NewTextColumn(dataset.DefaultKey, countries, nil),
		dataset.NewTextColumn(ColCapital, names, nil),
		dataset.NewNumberColumn(ColLat, lats, nil),
		dataset.NewNumberColumn(ColLon, lons, nil),
		dataset.NewNumberColumn(ColDistance, dists, nil),
	)
}

// AddDistanceColumn derives target from the coordinate columns of t. Rows
// with a missing coordinate get a missing distance; out-of-range coordinates
// are an error naming the country.
func AddDistanceColumn(t *dataset.Table, ref Point, latCol, lonCol, target string) (*dataset.Table, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("reference point: %w", err)
	}
	if t.HasColumn(target) {
		return nil, &core.ColumnConflictError{Table: t.Name(), Column: target}
	}
	lats, latOK, err := t.Numbers(latCol)
	if err != nil {
		return nil, err
	}
	lons, lonOK, err := t.Numbers(lonCol)
	if err != nil {
		return nil, err
	}

	dists := make([]float64, t.Len())
	valid := make([]bool, t.Len())
	for i := range dists {
		if !latOK[i] || !lonOK[i] {
			continue
		}
		p := Point{Lat: lats[i], Lon: lons[i]}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("table %s, %s: %w", t.Name(), t.KeyAt(i), err)
		}
		dists[i] = Distance(p, ref)
		valid[i] = true
	}
	return t.WithColumn(dataset.NewNumberColumn(target, dists, valid))
}

package domain

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AreaWeights turns a harvested-area layer into weights: NaN and
// non-positive areas become zero.
func AreaWeights(area Field2D) Field2D {
	w := Field2D{Grid: area.Grid, Values: make([]float64, len(area.Values))}
	for i, v := range area.Values {
		if v > 0 {
			w.Values[i] = v
		}
	}
	return w
}

// WeightedMean returns sum(x*w)/sum(w), treating NaN x as zero while keeping
// its weight in the denominator. It returns NaN when sum(w) is not positive.
func WeightedMean(x, w []float64) float64 {
	total := floats.Sum(w)
	if !(total > 0) {
		return math.NaN()
	}
	xs := make([]float64, len(x))
	for i, v := range x {
		if !math.IsNaN(v) {
			xs[i] = v
		}
	}
	return stat.Mean(xs, w)
}

// AggregateByCountry computes the harvested-area-weighted value of every
// annual column for each (year, country) present in the mask. Rows with no
// positive weight carry NaN values. All inputs must share one grid.
func AggregateByCountry(annual AnnualExposure, mask CountryMask, weights Field2D, reg *Registry) ([]ResultRow, error) {
	if !annual.Grid.Equal(mask.Grid) || !annual.Grid.Equal(weights.Grid) {
		return nil, fmt.Errorf("aggregate: exposure, country mask and weights are on different grids")
	}

	cellsByRegion := mask.CellsByRegion()
	regions := make([]int, 0, len(cellsByRegion))
	for r := range cellsByRegion {
		regions = append(regions, r)
	}
	slices.Sort(regions)

	rows := make([]ResultRow, 0, len(annual.Years)*len(regions))
	for yi, year := range annual.Years {
		for _, region := range regions {
			country, ok := reg.Country(region)
			if !ok {
				return nil, fmt.Errorf("aggregate: mask references unknown country index %d", region)
			}
			cells := cellsByRegion[region]
			w := make([]float64, len(cells))
			for i, c := range cells {
				w[i] = weights.Values[c]
			}

			values := make([]float64, len(annual.Columns))
			x := make([]float64, len(cells))
			for col := range annual.Columns {
				layer := annual.Values[col][yi]
				for i, c := range cells {
					x[i] = layer[c]
				}
				values[col] = WeightedMean(x, w)
			}
			rows = append(rows, ResultRow{
				Year:    year,
				Country: country.Name,
				ISO3:    country.ISO3,
				Values:  values,
			})
		}
	}
	return rows, nil
}

// CountryArea is the total harvested area assigned to one country.
type CountryArea struct {
	Country Country
	Area    float64
}

// SummarizeWeights totals harvested area per country on the raster's own
// grid and returns the countries with a positive total, in registry order.
func SummarizeWeights(area Raster, index *CountryIndex, reg *Registry) []CountryArea {
	g := area.CenterGrid()
	mask := index.Assign(g)
	totals := make(map[int]float64)
	for i, region := range mask.Values {
		if region == NoCountry {
			continue
		}
		if v := area.Values[i]; !math.IsNaN(v) {
			totals[int(region)] += v
		}
	}

	var out []CountryArea
	for _, c := range reg.Countries() {
		if t := totals[c.Index]; t > 0 {
			out = append(out, CountryArea{Country: c, Area: t})
		}
	}
	return out
}

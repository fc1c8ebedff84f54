package domain

import (
	"cmp"
	"math"
	"slices"
)

// ResultRow is one (year, country) line of the output table. Values follow
// the metric's column order.
type ResultRow struct {
	Year    int
	Country string
	ISO3    string
	Values  []float64
}

// HasData reports whether every value is defined.
func (r ResultRow) HasData() bool {
	for _, v := range r.Values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

type rowKey struct {
	year    int
	country string
	iso     string
}

// FinalizeRows drops rows with undefined values, keeps the first occurrence of
// each (year, country, ISO3) and sorts by year then country name. It returns
// the table and the number of rows dropped as no-data.
func FinalizeRows(rows []ResultRow) (out []ResultRow, dropped int) {
	seen := make(map[rowKey]struct{}, len(rows))
	out = make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		if !r.HasData() {
			dropped++
			continue
		}
		k := rowKey{r.Year, r.Country, r.ISO3}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b ResultRow) int {
		return cmp.Or(
			cmp.Compare(a.Year, b.Year),
			cmp.Compare(a.Country, b.Country),
			cmp.Compare(a.ISO3, b.ISO3),
		)
	})
	return out, dropped
}

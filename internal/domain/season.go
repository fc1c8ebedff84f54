package domain

import (
	"math"
	"sort"
	"time"
)

// Month is a calendar month 1..12, or MonthUndefined.
type Month int8

// MonthUndefined marks a cell whose day of year could not be converted.
const MonthUndefined Month = 0

// Valid reports whether m is a real calendar month.
func (m Month) Valid() bool { return m >= 1 && m <= 12 }

// MonthFromDayOfYear converts a day of year to its month on a non-leap
// calendar. NaN, fractional and out-of-range days yield MonthUndefined.
func MonthFromDayOfYear(doy float64) Month {
	if math.IsNaN(doy) || doy != math.Trunc(doy) || doy < 1 || doy > 365 {
		return MonthUndefined
	}
	// 1900 is not a leap year.
	d := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(doy)-1)
	return Month(d.Month())
}

func monthLE(a, b Month) bool { return a.Valid() && b.Valid() && a <= b }
func monthGE(a, b Month) bool { return a.Valid() && b.Valid() && a >= b }

// InSeason reports whether month m falls in the window start..end. A window
// with start > end wraps across New Year. Undefined months never satisfy a
// comparison.
func InSeason(start, end, m Month) bool {
	if monthLE(start, end) {
		return monthGE(m, start) && monthLE(m, end)
	}
	return monthGE(m, start) || monthLE(m, end)
}

// SeasonPoint is one row of the growing-season calendar.
type SeasonPoint struct {
	Lat        float64
	Lon        float64
	PlantDOY   float64
	HarvestDOY float64
}

// SeasonCalendar holds per-cell start and end months on the calendar's own grid.
type SeasonCalendar struct {
	Grid  Grid
	Start []Month
	End   []Month
}

// NewSeasonCalendar pivots calendar rows onto the grid of their unique sorted
// coordinates and converts days of year to months once. Cells without a row
// get undefined months. Duplicate coordinates keep the last row.
func NewSeasonCalendar(points []SeasonPoint) SeasonCalendar {
	lats := uniqueSorted(points, func(p SeasonPoint) float64 { return p.Lat })
	lons := uniqueSorted(points, func(p SeasonPoint) float64 { return p.Lon })
	g := Grid{Lats: lats, Lons: lons}

	cal := SeasonCalendar{
		Grid:  g,
		Start: make([]Month, g.Cells()),
		End:   make([]Month, g.Cells()),
	}
	for _, p := range points {
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
			continue
		}
		y := sort.SearchFloat64s(lats, p.Lat)
		x := sort.SearchFloat64s(lons, p.Lon)
		i := g.Index(y, x)
		cal.Start[i] = MonthFromDayOfYear(p.PlantDOY)
		cal.End[i] = MonthFromDayOfYear(p.HarvestDOY)
	}
	return cal
}

func uniqueSorted(points []SeasonPoint, key func(SeasonPoint) float64) []float64 {
	seen := make(map[float64]struct{}, len(points))
	out := make([]float64, 0, len(points))
	for _, p := range points {
		v := key(p)
		if math.IsNaN(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Reindex moves the calendar onto ref using unbounded nearest-neighbour
// lookup, so reference cells beyond the calendar's extent take the edge value.
func (c SeasonCalendar) Reindex(ref Grid) SeasonCalendar {
	out := SeasonCalendar{
		Grid:  ref,
		Start: make([]Month, ref.Cells()),
		End:   make([]Month, ref.Cells()),
	}
	if c.Grid.Cells() == 0 {
		return out
	}
	yi := NearestIndices(c.Grid.Lats, ref.Lats, false)
	xi := NearestIndices(c.Grid.Lons, ref.Lons, false)
	for y, sy := range yi {
		for x, sx := range xi {
			src := c.Grid.Index(sy, sx)
			dst := ref.Index(y, x)
			out.Start[dst] = c.Start[src]
			out.End[dst] = c.End[src]
		}
	}
	return out
}

// SeasonMask flags, per time step and cell, whether the cell is in its
// growing season. It is stored as a 12-bit month set per cell.
type SeasonMask struct {
	Times  []time.Time
	Grid   Grid
	months []uint16
}

// NewSeasonMask builds the mask for the given time axis from per-cell months
// that are already on the reference grid.
func NewSeasonMask(times []time.Time, cal SeasonCalendar) SeasonMask {
	bits := make([]uint16, len(cal.Start))
	for i := range bits {
		for m := Month(1); m <= 12; m++ {
			if InSeason(cal.Start[i], cal.End[i], m) {
				bits[i] |= 1 << uint(m-1)
			}
		}
	}
	return SeasonMask{Times: times, Grid: cal.Grid, months: bits}
}

// At reports whether cell is in season at time step t.
func (s SeasonMask) At(t, cell int) bool {
	m := s.Times[t].UTC().Month()
	return s.months[cell]&(1<<uint(m-1)) != 0
}

// Dense expands the mask to the (time, lat, lon) layout of a Field3D.
func (s SeasonMask) Dense() []bool {
	n := s.Grid.Cells()
	out := make([]bool, len(s.Times)*n)
	for t := range s.Times {
		for c := 0; c < n; c++ {
			out[t*n+c] = s.At(t, c)
		}
	}
	return out
}

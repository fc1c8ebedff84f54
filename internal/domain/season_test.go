package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthFromDayOfYear(t *testing.T) {
	tests := []struct {
		name string
		doy  float64
		want Month
	}{
		{"first day", 1, 1},
		{"end of january", 31, 1},
		{"first of february", 32, 2},
		{"non-leap first of march", 60, 3},
		{"planting in november", 330, 11},
		{"harvest in february", 45, 2},
		{"last day", 365, 12},
		{"leap day of year", 366, MonthUndefined},
		{"zero", 0, MonthUndefined},
		{"negative", -4, MonthUndefined},
		{"fractional", 45.5, MonthUndefined},
		{"NaN", math.NaN(), MonthUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthFromDayOfYear(tt.doy))
		})
	}
}

func TestInSeason_AllTriples(t *testing.T) {
	for start := Month(1); start <= 12; start++ {
		for end := Month(1); end <= 12; end++ {
			for m := Month(1); m <= 12; m++ {
				var want bool
				if start <= end {
					want = start <= m && m <= end
				} else {
					want = m >= start || m <= end
				}
				assert.Equal(t, want, InSeason(start, end, m), "start=%d end=%d month=%d", start, end, m)
			}
		}
	}
}

func TestInSeason_WrapWindow(t *testing.T) {
	for _, m := range []Month{11, 12, 1, 2} {
		assert.True(t, InSeason(11, 2, m), "month %d", m)
	}
	for m := Month(3); m <= 10; m++ {
		assert.False(t, InSeason(11, 2, m), "month %d", m)
	}
}

func TestInSeason_UndefinedBoundary(t *testing.T) {
	t.Run("undefined start selects months up to end", func(t *testing.T) {
		assert.True(t, InSeason(MonthUndefined, 2, 1))
		assert.True(t, InSeason(MonthUndefined, 2, 2))
		assert.False(t, InSeason(MonthUndefined, 2, 3))
	})

	t.Run("undefined end selects months from start", func(t *testing.T) {
		assert.True(t, InSeason(11, MonthUndefined, 12))
		assert.False(t, InSeason(11, MonthUndefined, 10))
	})

	t.Run("both undefined is never in season", func(t *testing.T) {
		for m := Month(1); m <= 12; m++ {
			assert.False(t, InSeason(MonthUndefined, MonthUndefined, m))
		}
	})
}

func TestNewSeasonCalendar(t *testing.T) {
	cal := NewSeasonCalendar([]SeasonPoint{
		{Lat: 10, Lon: 20, PlantDOY: 330, HarvestDOY: 45},
		{Lat: -10, Lon: 20, PlantDOY: 100, HarvestDOY: 250},
		{Lat: 10, Lon: 30, PlantDOY: math.NaN(), HarvestDOY: 200},
	})

	assert.Equal(t, []float64{-10, 10}, cal.Grid.Lats)
	assert.Equal(t, []float64{20, 30}, cal.Grid.Lons)

	assert.Equal(t, Month(4), cal.Start[cal.Grid.Index(0, 0)])
	assert.Equal(t, Month(9), cal.End[cal.Grid.Index(0, 0)])
	assert.Equal(t, Month(11), cal.Start[cal.Grid.Index(1, 0)])
	assert.Equal(t, Month(2), cal.End[cal.Grid.Index(1, 0)])
	assert.Equal(t, MonthUndefined, cal.Start[cal.Grid.Index(1, 1)])
	assert.Equal(t, Month(7), cal.End[cal.Grid.Index(1, 1)])

	// No row for (-10, 30).
	assert.Equal(t, MonthUndefined, cal.Start[cal.Grid.Index(0, 1)])
	assert.Equal(t, MonthUndefined, cal.End[cal.Grid.Index(0, 1)])
}

func TestSeasonCalendar_ReindexExtendsEdges(t *testing.T) {
	cal := NewSeasonCalendar([]SeasonPoint{
		{Lat: 0, Lon: 0, PlantDOY: 1, HarvestDOY: 31},
		{Lat: 0, Lon: 1, PlantDOY: 32, HarvestDOY: 59},
	})
	ref := Grid{Lats: []float64{5, -5}, Lons: []float64{-3, 0.4, 0.6, 9}}

	out := cal.Reindex(ref)

	require.True(t, out.Grid.Equal(ref))
	for y := range ref.Lats {
		assert.Equal(t, Month(1), out.Start[ref.Index(y, 0)])
		assert.Equal(t, Month(1), out.Start[ref.Index(y, 1)])
		assert.Equal(t, Month(2), out.Start[ref.Index(y, 2)])
		assert.Equal(t, Month(2), out.Start[ref.Index(y, 3)])
	}
}

func TestSeasonMask_WrapAroundBoundary(t *testing.T) {
	g := Grid{Lats: []float64{0}, Lons: []float64{0}}
	cal := SeasonCalendar{
		Grid:  g,
		Start: []Month{MonthFromDayOfYear(330)},
		End:   []Month{MonthFromDayOfYear(45)},
	}
	times := []time.Time{day(2001, time.December, 15), day(2002, time.January, 10), day(2002, time.June, 1)}

	mask := NewSeasonMask(times, cal)

	assert.True(t, mask.At(0, 0), "december")
	assert.True(t, mask.At(1, 0), "january")
	assert.False(t, mask.At(2, 0), "june")
	assert.Equal(t, []bool{true, true, false}, mask.Dense())
}

func TestSeasonMask_DenseShape(t *testing.T) {
	g := Grid{Lats: []float64{0, 1}, Lons: []float64{0, 1, 2}}
	cal := SeasonCalendar{
		Grid:  g,
		Start: []Month{1, 1, 1, 6, 6, 6},
		End:   []Month{3, 3, 3, 8, 8, 8},
	}
	times := []time.Time{day(2000, time.February, 1), day(2000, time.July, 1)}

	dense := NewSeasonMask(times, cal).Dense()

	require.Len(t, dense, 2*6)
	assert.Equal(t, []bool{true, true, true, false, false, false}, dense[:6])
	assert.Equal(t, []bool{false, false, false, true, true, true}, dense[6:])
}

package netcdf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []float64
	}{
		{"float32 cube", [][][]float32{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}}, []float64{1, 2, 3, 4, 5, 6, 7, 8}},
		{"float64 vector", []float64{0.5, 1.5}, []float64{0.5, 1.5}},
		{"int16 packed", [][]int16{{-1, 2}}, []float64{-1, 2}},
		{"int32 hours", []int32{0, 24}, []float64{0, 24}},
		{"int8", []int8{-3}, []float64{-3}},
		{"scalar", float32(2.5), []float64{2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := flatten(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("strings are rejected", func(t *testing.T) {
		_, err := flatten([]string{"a"})
		assert.Error(t, err)
	})

	t.Run("nil is rejected", func(t *testing.T) {
		_, err := flatten(nil)
		assert.Error(t, err)
	})
}

func TestPacking_Apply(t *testing.T) {
	p := packing{fill: -32767, hasFill: true, missing: 1e20, hasMissing: true, scale: 0.01, offset: 273.15}
	vals := []float64{-32767, 1e20, 100, 0}

	p.apply(vals)

	assert.True(t, math.IsNaN(vals[0]))
	assert.True(t, math.IsNaN(vals[1]))
	assert.InDelta(t, 274.15, vals[2], 1e-9)
	assert.InDelta(t, 273.15, vals[3], 1e-9)
}

func TestPacking_DefaultIsIdentity(t *testing.T) {
	vals := []float64{1.25, math.NaN()}

	packing{scale: 1}.apply(vals)

	assert.Equal(t, 1.25, vals[0])
	assert.True(t, math.IsNaN(vals[1]))
}

func TestParseTimeAxis(t *testing.T) {
	tests := []struct {
		units string
		unit  time.Duration
		epoch time.Time
	}{
		{"days since 1850-01-01", 24 * time.Hour, date(1850, time.January, 1)},
		{"hours since 1900-01-01 00:00:00.0", time.Hour, date(1900, time.January, 1)},
		{"seconds since 1970-1-1 0:0:0", time.Second, date(1970, time.January, 1)},
		{"minutes since 2000-02-03T06:30:00Z", time.Minute, time.Date(2000, time.February, 3, 6, 30, 0, 0, time.UTC)},
		{"days since 1901-01-01 00:00:00 UTC", 24 * time.Hour, date(1901, time.January, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			ax, err := parseTimeAxis(tt.units, "standard")
			require.NoError(t, err)
			assert.Equal(t, tt.unit, ax.unit)
			assert.True(t, tt.epoch.Equal(ax.epoch), "epoch %s", ax.epoch)
		})
	}
}

func TestParseTimeAxis_Errors(t *testing.T) {
	_, err := parseTimeAxis("days", "standard")
	assert.Error(t, err)

	_, err = parseTimeAxis("fortnights since 2000-01-01", "standard")
	assert.Error(t, err)

	_, err = parseTimeAxis("days since yesterday", "standard")
	assert.Error(t, err)

	_, err = parseTimeAxis("days since 2000-01-01", "360_day")
	assert.ErrorIs(t, err, errUnsupportedCalendar)
}

func TestTimeAxis_DecodeStandard(t *testing.T) {
	ax, err := parseTimeAxis("days since 2000-01-01", "proleptic_gregorian")
	require.NoError(t, err)

	got, err := ax.decode([]float64{0, 59, 60, 366, 0.5})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		date(2000, time.January, 1),
		date(2000, time.February, 29),
		date(2000, time.March, 1),
		date(2001, time.January, 1),
		date(2000, time.January, 1).Add(12 * time.Hour),
	}, got)
}

func TestTimeAxis_DecodeHours(t *testing.T) {
	ax, err := parseTimeAxis("hours since 1900-01-01 00:00:00", "gregorian")
	require.NoError(t, err)

	got, err := ax.decode([]float64{876576})
	require.NoError(t, err)

	assert.Equal(t, date(2000, time.January, 1), got[0])
}

func TestTimeAxis_DecodeNoLeap(t *testing.T) {
	ax, err := parseTimeAxis("days since 2000-01-01", "noleap")
	require.NoError(t, err)

	got, err := ax.decode([]float64{58, 59, 365, 730, -1})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		date(2000, time.February, 28),
		date(2000, time.March, 1),
		date(2001, time.January, 1),
		date(2002, time.January, 1),
		date(1999, time.December, 31),
	}, got)
}

func TestTimeAxis_DecodeRejectsNaN(t *testing.T) {
	ax, err := parseTimeAxis("days since 2000-01-01", "")
	require.NoError(t, err)

	_, err = ax.decode([]float64{math.NaN()})
	assert.Error(t, err)
}

func TestMatchLayout(t *testing.T) {
	l, ok := matchLayout([]string{"time", "latitude", "longitude"})
	require.True(t, ok)
	assert.Equal(t, layout{time: "time", lat: "latitude", lon: "longitude"}, l)

	_, ok = matchLayout([]string{"time", "lon", "lat"})
	assert.False(t, ok)

	_, ok = matchLayout([]string{"time", "bnds"})
	assert.False(t, ok)
}

func TestWindowRange(t *testing.T) {
	times := []time.Time{
		date(2000, time.January, 16),
		date(2000, time.February, 15),
		date(2000, time.March, 16),
		date(2000, time.April, 15),
		date(2000, time.May, 16),
	}

	tests := []struct {
		name       string
		from, to   time.Time
		begin, end int
		ok         bool
	}{
		{"inside one month", date(2000, time.February, 20), date(2000, time.March, 10), 1, 3, true},
		{"spanning steps", date(2000, time.February, 15), date(2000, time.April, 15), 0, 5, true},
		{"before the series", date(1999, time.January, 1), date(1999, time.December, 31), 0, 1, true},
		{"after the series", date(2001, time.January, 1), date(2001, time.December, 31), 4, 5, true},
		{"inverted", date(2000, time.May, 1), date(2000, time.January, 1), 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			begin, end, ok := windowRange(times, tt.from, tt.to)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.begin, begin)
			assert.Equal(t, tt.end, end)
		})
	}

	_, _, ok := windowRange(nil, date(2000, time.January, 1), date(2000, time.January, 2))
	assert.False(t, ok)
}

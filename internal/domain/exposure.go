package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// KelvinOffset converts between Kelvin and degrees Celsius.
const KelvinOffset = 273.15

// Metric names accepted in configuration.
const (
	MetricCDHW          = "cdhw"
	MetricMeanTemp      = "mean_temp"
	MetricPrecipitation = "precipitation"
)

// ErrMissingDrought is returned when a metric needs the drought index but none
// was supplied.
var ErrMissingDrought = errors.New("drought index required")

// ExposureInputs are the aligned fields for one climate file. Climate and
// Drought (when set) share Season's time axis and grid.
type ExposureInputs struct {
	Climate Field3D
	Drought *Field3D
	Season  SeasonMask
}

// AnnualExposure holds per-cell annual values for every metric column.
// Values is indexed [column][year][cell].
type AnnualExposure struct {
	Grid    Grid
	Years   []int
	Columns []string
	Values  [][][]float64
}

// ExposureMetric turns aligned daily fields into annual per-cell values.
type ExposureMetric interface {
	Name() string
	Columns() []string
	NeedsDrought() bool
	Annual(in ExposureInputs) (AnnualExposure, error)
}

// CelsiusFromKelvin converts an absolute temperature to degrees Celsius.
func CelsiusFromKelvin(k float64) float64 { return k - KelvinOffset }

// yearGroups splits time steps into calendar years in order of appearance.
// Years are ascending for sorted axes.
func yearGroups(f Field3D) (years []int, groups [][]int) {
	pos := make(map[int]int)
	for t, ts := range f.Times {
		y := ts.UTC().Year()
		i, ok := pos[y]
		if !ok {
			i = len(years)
			pos[y] = i
			years = append(years, y)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t)
	}
	return years, groups
}

func checkInputs(in ExposureInputs) error {
	if err := in.Climate.Validate(); err != nil {
		return err
	}
	if len(in.Season.Times) != len(in.Climate.Times) || !in.Season.Grid.Equal(in.Climate.Grid) {
		return fmt.Errorf("season mask shape does not match field %q", in.Climate.Name)
	}
	if in.Drought != nil {
		if err := in.Drought.Validate(); err != nil {
			return err
		}
		if len(in.Drought.Times) != len(in.Climate.Times) || !in.Drought.Grid.Equal(in.Climate.Grid) {
			return fmt.Errorf("drought field shape does not match field %q", in.Climate.Name)
		}
	}
	return nil
}

func newAnnual(g Grid, years []int, columns []string) AnnualExposure {
	a := AnnualExposure{Grid: g, Years: years, Columns: columns, Values: make([][][]float64, len(columns))}
	for c := range columns {
		a.Values[c] = make([][]float64, len(years))
		for y := range years {
			a.Values[c][y] = make([]float64, g.Cells())
		}
	}
	return a
}

// CDHW counts compound drought-heatwave days: temperature above a heat
// threshold while the drought index is below its threshold, inside the
// growing season. Each heat threshold yields its own column.
type CDHW struct {
	HeatThresholdsC  []float64
	DroughtThreshold float64
	// Kelvin reports that the temperature field is in Kelvin.
	Kelvin bool
}

func (m CDHW) Name() string       { return MetricCDHW }
func (m CDHW) NeedsDrought() bool { return true }

// Columns returns CDHW<threshold>_days for each threshold.
func (m CDHW) Columns() []string {
	cols := make([]string, len(m.HeatThresholdsC))
	for i, t := range m.HeatThresholdsC {
		cols[i] = "CDHW" + strconv.FormatFloat(t, 'f', -1, 64) + "_days"
	}
	return cols
}

func (m CDHW) Annual(in ExposureInputs) (AnnualExposure, error) {
	if in.Drought == nil {
		return AnnualExposure{}, ErrMissingDrought
	}
	if err := checkInputs(in); err != nil {
		return AnnualExposure{}, err
	}

	thresholds := make([]float64, len(m.HeatThresholdsC))
	for i, t := range m.HeatThresholdsC {
		if m.Kelvin {
			t += KelvinOffset
		}
		thresholds[i] = t
	}

	f := in.Climate
	years, groups := yearGroups(f)
	out := newAnnual(f.Grid, years, m.Columns())
	n := f.Grid.Cells()
	for yi, steps := range groups {
		for _, t := range steps {
			temp := f.Layer(t)
			drought := in.Drought.Layer(t)
			for c := 0; c < n; c++ {
				// NaN compares false on both sides.
				if !(drought[c] < m.DroughtThreshold) || !in.Season.At(t, c) {
					continue
				}
				for k, thr := range thresholds {
					if temp[c] > thr {
						out.Values[k][yi][c]++
					}
				}
			}
		}
	}
	return out, nil
}

// MeanTemperature averages in-season daily temperature in degrees Celsius.
// Cells with no defined in-season day are NaN.
type MeanTemperature struct {
	Kelvin bool
}

func (m MeanTemperature) Name() string       { return MetricMeanTemp }
func (m MeanTemperature) NeedsDrought() bool { return false }
func (m MeanTemperature) Columns() []string  { return []string{"mean_temp"} }

func (m MeanTemperature) Annual(in ExposureInputs) (AnnualExposure, error) {
	if err := checkInputs(in); err != nil {
		return AnnualExposure{}, err
	}
	f := in.Climate
	years, groups := yearGroups(f)
	out := newAnnual(f.Grid, years, m.Columns())
	n := f.Grid.Cells()
	count := make([]int, n)
	for yi, steps := range groups {
		sum := out.Values[0][yi]
		clear(count)
		for _, t := range steps {
			temp := f.Layer(t)
			for c := 0; c < n; c++ {
				v := temp[c]
				if math.IsNaN(v) || !in.Season.At(t, c) {
					continue
				}
				if m.Kelvin {
					v = CelsiusFromKelvin(v)
				}
				sum[c] += v
				count[c]++
			}
		}
		for c := range sum {
			if count[c] == 0 {
				sum[c] = math.NaN()
				continue
			}
			sum[c] /= float64(count[c])
		}
	}
	return out, nil
}

// PrecipitationTotal sums in-season daily precipitation. Cells with no
// defined in-season day sum to zero.
type PrecipitationTotal struct{}

func (PrecipitationTotal) Name() string       { return MetricPrecipitation }
func (PrecipitationTotal) NeedsDrought() bool { return false }
func (PrecipitationTotal) Columns() []string  { return []string{"precipitation_total"} }

func (m PrecipitationTotal) Annual(in ExposureInputs) (AnnualExposure, error) {
	if err := checkInputs(in); err != nil {
		return AnnualExposure{}, err
	}
	f := in.Climate
	years, groups := yearGroups(f)
	out := newAnnual(f.Grid, years, m.Columns())
	n := f.Grid.Cells()
	for yi, steps := range groups {
		sum := out.Values[0][yi]
		for _, t := range steps {
			p := f.Layer(t)
			for c := 0; c < n; c++ {
				if math.IsNaN(p[c]) || !in.Season.At(t, c) {
					continue
				}
				sum[c] += p[c]
			}
		}
	}
	return out, nil
}

// MetricSettings carries the configuration needed to build a metric.
type MetricSettings struct {
	HeatThresholdsC  []float64
	DroughtThreshold float64
	Kelvin           bool
}

// NewMetric returns the metric registered under name.
func NewMetric(name string, s MetricSettings) (ExposureMetric, error) {
	switch name {
	case MetricCDHW:
		if len(s.HeatThresholdsC) == 0 {
			return nil, errors.New("cdhw: at least one heat threshold is required")
		}
		return CDHW{HeatThresholdsC: s.HeatThresholdsC, DroughtThreshold: s.DroughtThreshold, Kelvin: s.Kelvin}, nil
	case MetricMeanTemp:
		return MeanTemperature{Kelvin: s.Kelvin}, nil
	case MetricPrecipitation:
		return PrecipitationTotal{}, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

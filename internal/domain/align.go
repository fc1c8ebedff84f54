package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// NearestIndex returns the index of the coordinate in c (monotonic, either
// direction) closest to v. With bounded set, values outside [min(c), max(c)]
// return -1; otherwise they clamp to the nearest end. Ties resolve to the
// larger coordinate.
func NearestIndex(c []float64, v float64, bounded bool) int {
	n := len(c)
	if n == 0 || math.IsNaN(v) {
		return -1
	}
	desc := n > 1 && c[0] > c[n-1]
	lo, hi := c[0], c[n-1]
	if desc {
		lo, hi = hi, lo
	}
	if v < lo || v > hi {
		if bounded {
			return -1
		}
		if (v < lo) != desc {
			return 0
		}
		return n - 1
	}

	// i is the first position whose coordinate is past v in axis order.
	var i int
	if desc {
		i = sort.Search(n, func(k int) bool { return c[k] <= v })
	} else {
		i = sort.Search(n, func(k int) bool { return c[k] >= v })
	}
	if i < n && c[i] == v {
		return i
	}
	if i == 0 {
		return 0
	}
	if i == n {
		return n - 1
	}
	prev, next := i-1, i
	dPrev, dNext := math.Abs(v-c[prev]), math.Abs(c[next]-v)
	switch {
	case dPrev < dNext:
		return prev
	case dNext < dPrev:
		return next
	case c[prev] > c[next]:
		return prev
	default:
		return next
	}
}

// NearestIndices maps every target coordinate to its nearest source index.
func NearestIndices(src, dst []float64, bounded bool) []int {
	out := make([]int, len(dst))
	for i, v := range dst {
		out[i] = NearestIndex(src, v, bounded)
	}
	return out
}

// RegridNearest moves f onto ref by bounded nearest-neighbour lookup in
// latitude and longitude. Reference cells outside f's extent become NaN.
func RegridNearest(f Field3D, ref Grid) Field3D {
	if f.Grid.Equal(ref) {
		return f
	}
	yi := NearestIndices(f.Grid.Lats, ref.Lats, true)
	xi := NearestIndices(f.Grid.Lons, ref.Lons, true)
	out := NewField3D(f.Name, f.Times, ref, math.NaN())
	srcN, dstN := f.Grid.Cells(), ref.Cells()
	for t := range f.Times {
		src := f.Values[t*srcN : (t+1)*srcN]
		dst := out.Values[t*dstN : (t+1)*dstN]
		for y, sy := range yi {
			if sy < 0 {
				continue
			}
			for x, sx := range xi {
				if sx < 0 {
					continue
				}
				dst[ref.Index(y, x)] = src[f.Grid.Index(sy, sx)]
			}
		}
	}
	return out
}

func unixSeconds(ts []time.Time) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = float64(t.Unix())
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyTimeIndex resamples a coarser time axis onto the reference timestamps.
// A daily axis spanning the reference days is sampled by bounded
// nearest-neighbour in time; each reference timestamp then takes the value of
// the latest daily slot at or before it. Entries of -1 mean the reference
// time lies outside the source's extent.
func DailyTimeIndex(src, ref []time.Time) []int {
	out := make([]int, len(ref))
	secs := unixSeconds(src)
	for i, t := range ref {
		out[i] = NearestIndex(secs, float64(startOfDay(t).Unix()), true)
	}
	return out
}

// AlignTime resamples f onto the reference time axis using DailyTimeIndex.
// f must already be on the reference grid.
func AlignTime(f Field3D, refTimes []time.Time) Field3D {
	idx := DailyTimeIndex(f.Times, refTimes)
	out := NewField3D(f.Name, refTimes, f.Grid, math.NaN())
	n := f.Grid.Cells()
	for t, si := range idx {
		if si < 0 {
			continue
		}
		copy(out.Values[t*n:(t+1)*n], f.Values[si*n:(si+1)*n])
	}
	return out
}

// AlignToReference regrids and time-resamples a secondary field onto ref.
func AlignToReference(f Field3D, ref Field3D) (Field3D, error) {
	if err := f.Validate(); err != nil {
		return Field3D{}, fmt.Errorf("align %s: %w", f.Name, err)
	}
	return AlignTime(RegridNearest(f, ref.Grid), ref.Times), nil
}

// OverlapWindow returns the half-open range [from, to) of reference time steps
// for which the secondary source has data, given the indices produced by
// DailyTimeIndex. ok is false when the series do not overlap.
func OverlapWindow(idx []int) (from, to int, ok bool) {
	from, to = -1, -1
	for i, v := range idx {
		if v < 0 {
			continue
		}
		if from < 0 {
			from = i
		}
		to = i + 1
	}
	if from < 0 {
		return 0, 0, false
	}
	return from, to, true
}

// RestrictTime keeps the time steps of f within [min, max] inclusive.
func RestrictTime(f Field3D, minT, maxT time.Time) Field3D {
	from := sort.Search(len(f.Times), func(i int) bool { return !f.Times[i].Before(minT) })
	to := sort.Search(len(f.Times), func(i int) bool { return f.Times[i].After(maxT) })
	if to < from {
		to = from
	}
	return f.Slice(from, to)
}

// Resampling selects how a raster is moved onto a coarser or finer grid.
type Resampling string

// Supported raster resampling methods.
const (
	ResampleNearest Resampling = "nearest"
	ResampleAverage Resampling = "average"
	ResampleSum     Resampling = "sum"
)

// ParseResampling validates a resampling method name.
func ParseResampling(s string) (Resampling, error) {
	switch r := Resampling(s); r {
	case ResampleNearest, ResampleAverage, ResampleSum:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resampling method %q", s)
	}
}

// ReprojectMatch resamples r onto ref. Nearest takes the pixel containing each
// target centre; average and sum combine the valid pixels whose centres fall
// inside the target cell. Targets with no source pixel are NaN.
func ReprojectMatch(r Raster, ref Grid, method Resampling) Field2D {
	out := NewField2D(ref, math.NaN())
	if method == ResampleNearest {
		for y, lat := range ref.Lats {
			for x, lon := range ref.Lons {
				if row, col, ok := r.pixel(lat, lon); ok {
					out.Values[ref.Index(y, x)] = r.Values[row*r.Width+col]
				}
			}
		}
		return out
	}

	for y := range ref.Lats {
		for x := range ref.Lons {
			south, north, west, east := ref.CellBounds(y, x)
			sum, n := 0.0, 0
			for _, row := range pixelRange(r.Y0, r.DY, r.Height, south, north) {
				for _, col := range pixelRange(r.X0, r.DX, r.Width, west, east) {
					v := r.Values[row*r.Width+col]
					if math.IsNaN(v) {
						continue
					}
					sum += v
					n++
				}
			}
			if n == 0 {
				continue
			}
			if method == ResampleAverage {
				sum /= float64(n)
			}
			out.Values[ref.Index(y, x)] = sum
		}
	}
	return out
}

// pixelRange lists pixel indices along one axis whose centres lie in [lo, hi).
func pixelRange(origin, step float64, n int, lo, hi float64) []int {
	if step == 0 {
		return nil
	}
	var out []int
	// Index bounds from the centre formula origin+(i+0.5)*step.
	a := (lo-origin)/step - 0.5
	b := (hi-origin)/step - 0.5
	if a > b {
		a, b = b, a
	}
	for i := max(0, int(math.Floor(a))); i <= min(n-1, int(math.Ceil(b))); i++ {
		c := origin + (float64(i)+0.5)*step
		if c >= lo && c < hi {
			out = append(out, i)
		}
	}
	return out
}

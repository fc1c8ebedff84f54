package domain

import (
	"fmt"
	"math"
	"time"
)

// Grid is a regular or irregular lat/lon grid identified by its cell-centre
// coordinate vectors.
type Grid struct {
	Lats []float64
	Lons []float64
}

// NY returns the number of latitude rows.
func (g Grid) NY() int { return len(g.Lats) }

// NX returns the number of longitude columns.
func (g Grid) NX() int { return len(g.Lons) }

// Cells returns the number of cells in one 2-D layer.
func (g Grid) Cells() int { return len(g.Lats) * len(g.Lons) }

// Index returns the flat index of cell (y, x).
func (g Grid) Index(y, x int) int { return y*len(g.Lons) + x }

// Equal reports whether two grids share identical coordinate vectors.
func (g Grid) Equal(o Grid) bool {
	return equalFloats(g.Lats, o.Lats) && equalFloats(g.Lons, o.Lons)
}

// CellBounds returns the edges of cell (y, x). Edges sit halfway between
// neighbouring centres; the outer edges extend half a step past the first and
// last centres. Single-cell axes get a zero-width cell.
func (g Grid) CellBounds(y, x int) (south, north, west, east float64) {
	lo, hi := axisBounds(g.Lats, y)
	south, north = math.Min(lo, hi), math.Max(lo, hi)
	lo, hi = axisBounds(g.Lons, x)
	west, east = math.Min(lo, hi), math.Max(lo, hi)
	return south, north, west, east
}

func axisBounds(c []float64, i int) (float64, float64) {
	n := len(c)
	if n == 1 {
		return c[0], c[0]
	}
	var lo, hi float64
	if i == 0 {
		lo = c[0] - (c[1]-c[0])/2
	} else {
		lo = (c[i-1] + c[i]) / 2
	}
	if i == n-1 {
		hi = c[n-1] + (c[n-1]-c[n-2])/2
	} else {
		hi = (c[i] + c[i+1]) / 2
	}
	return lo, hi
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Field2D is a single gridded layer.
type Field2D struct {
	Grid   Grid
	Values []float64
}

// NewField2D allocates a layer filled with fill.
func NewField2D(g Grid, fill float64) Field2D {
	v := make([]float64, g.Cells())
	for i := range v {
		v[i] = fill
	}
	return Field2D{Grid: g, Values: v}
}

// At returns the value of cell (y, x).
func (f Field2D) At(y, x int) float64 { return f.Values[f.Grid.Index(y, x)] }

// Field3D is a daily (or coarser) time series of gridded layers.
type Field3D struct {
	Name   string
	Times  []time.Time
	Grid   Grid
	Values []float64
}

// NewField3D allocates a field filled with fill.
func NewField3D(name string, times []time.Time, g Grid, fill float64) Field3D {
	v := make([]float64, len(times)*g.Cells())
	for i := range v {
		v[i] = fill
	}
	return Field3D{Name: name, Times: times, Grid: g, Values: v}
}

// Validate checks that the value slice matches the declared shape.
func (f Field3D) Validate() error {
	want := len(f.Times) * f.Grid.Cells()
	if len(f.Values) != want {
		return fmt.Errorf("field %q: %d values for shape (%d, %d, %d)",
			f.Name, len(f.Values), len(f.Times), f.Grid.NY(), f.Grid.NX())
	}
	return nil
}

// Layer returns the values of time step t without copying.
func (f Field3D) Layer(t int) []float64 {
	n := f.Grid.Cells()
	return f.Values[t*n : (t+1)*n]
}

// At returns the value at (t, y, x).
func (f Field3D) At(t, y, x int) float64 {
	return f.Values[t*f.Grid.Cells()+f.Grid.Index(y, x)]
}

// TimeRange returns the first and last timestamps. ok is false for an empty field.
func (f Field3D) TimeRange() (first, last time.Time, ok bool) {
	if len(f.Times) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return f.Times[0], f.Times[len(f.Times)-1], true
}

// Slice returns time steps [from, to) sharing the underlying values.
func (f Field3D) Slice(from, to int) Field3D {
	n := f.Grid.Cells()
	return Field3D{
		Name:   f.Name,
		Times:  f.Times[from:to],
		Grid:   f.Grid,
		Values: f.Values[from*n : to*n],
	}
}

// Raster is a north-up affine raster as stored in a GeoTIFF. Pixel (row, col)
// covers lon [X0+col*DX, X0+(col+1)*DX] and lat between Y0+row*DY and
// Y0+(row+1)*DY (DY is negative for north-up images).
type Raster struct {
	X0, Y0 float64
	DX, DY float64
	Width  int
	Height int
	Values []float64
}

// CenterGrid returns the grid of pixel centres.
func (r Raster) CenterGrid() Grid {
	lats := make([]float64, r.Height)
	for j := range lats {
		lats[j] = r.Y0 + (float64(j)+0.5)*r.DY
	}
	lons := make([]float64, r.Width)
	for i := range lons {
		lons[i] = r.X0 + (float64(i)+0.5)*r.DX
	}
	return Grid{Lats: lats, Lons: lons}
}

// pixel returns the pixel containing (lat, lon), or ok=false outside the raster.
func (r Raster) pixel(lat, lon float64) (row, col int, ok bool) {
	if r.DX == 0 || r.DY == 0 {
		return 0, 0, false
	}
	col = int(math.Floor((lon - r.X0) / r.DX))
	row = int(math.Floor((lat - r.Y0) / r.DY))
	if col < 0 || col >= r.Width || row < 0 || row >= r.Height {
		return 0, 0, false
	}
	return row, col, true
}

package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// ErrSchema reports an input table or layer missing a required column.
var ErrSchema = errors.New("schema error")

// NoCountry marks a cell whose centre lies in no country polygon.
const NoCountry int32 = -1

// searchEpsilon pads point queries so the rtree sees a non-degenerate box.
const searchEpsilon = 1e-9

// edgeNudge is the up-right offset used to decide which polygon owns a point
// lying on a boundary. It stays inside the padded rtree query box.
const edgeNudge = searchEpsilon / 2

// ExcludeISOColumn is the attribute matched against the exclusion list. Layers
// without it are filtered on their resolved ISO3 column.
const ExcludeISOColumn = "ISO_A3"

// isoColumns lists the accepted ISO3 columns in order of preference.
var isoColumns = []string{"ADM0_A3", "ISO_A3", "ISO_A3_EH"}

// CountryFeature is one row of the country-boundary layer.
type CountryFeature struct {
	Attributes map[string]string
	Geometry   geom.Polygonal
}

// CountryLayer is the decoded country-boundary layer.
type CountryLayer struct {
	Columns  []string
	Features []CountryFeature
}

// Country is a registry entry.
type Country struct {
	Index int
	Name  string
	ISO3  string
}

// Registry maps registry indices to countries. It is built once per run and
// shared read-only across files.
type Registry struct {
	countries []Country
	shapes    []countryShape
}

// countryShape is the rtree item for one registry polygon.
type countryShape struct {
	geom.Polygonal
	index int
}

// ResolveISOColumn picks the ISO3 column present in columns.
func ResolveISOColumn(columns []string) (string, error) {
	for _, c := range isoColumns {
		if slices.Contains(columns, c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: no ISO3 column (want one of %s); available columns: %s",
		ErrSchema, strings.Join(isoColumns, ", "), strings.Join(columns, ", "))
}

// NewRegistry builds the registry from the boundary layer in layer order.
// Features whose ISO_A3 code is listed in excludeISO are skipped; the code
// stored on each entry still comes from the preferred ISO3 column.
func NewRegistry(layer CountryLayer, nameColumn string, excludeISO []string) (*Registry, error) {
	isoCol, err := ResolveISOColumn(layer.Columns)
	if err != nil {
		return nil, err
	}
	excludeCol := isoCol
	if slices.Contains(layer.Columns, ExcludeISOColumn) {
		excludeCol = ExcludeISOColumn
	}
	if !slices.Contains(layer.Columns, nameColumn) {
		return nil, fmt.Errorf("%w: no country name column %q; available columns: %s",
			ErrSchema, nameColumn, strings.Join(layer.Columns, ", "))
	}

	r := &Registry{}
	for _, f := range layer.Features {
		if slices.Contains(excludeISO, strings.TrimSpace(f.Attributes[excludeCol])) {
			continue
		}
		iso := strings.TrimSpace(f.Attributes[isoCol])
		idx := len(r.countries)
		r.countries = append(r.countries, Country{
			Index: idx,
			Name:  strings.TrimSpace(f.Attributes[nameColumn]),
			ISO3:  iso,
		})
		r.shapes = append(r.shapes, countryShape{Polygonal: f.Geometry, index: idx})
	}
	return r, nil
}

// Len returns the number of registered countries.
func (r *Registry) Len() int { return len(r.countries) }

// Country returns the entry for a registry index.
func (r *Registry) Country(i int) (Country, bool) {
	if i < 0 || i >= len(r.countries) {
		return Country{}, false
	}
	return r.countries[i], true
}

// Countries returns all entries in registry order.
func (r *Registry) Countries() []Country { return slices.Clone(r.countries) }

// CountryIndex answers point-in-country queries. Build it once per run with
// NewCountryIndex.
type CountryIndex struct {
	tree *rtree.Rtree
}

// NewCountryIndex indexes the registry polygons by their bounding boxes.
func NewCountryIndex(r *Registry) *CountryIndex {
	tree := rtree.NewTree(25, 50)
	for _, s := range r.shapes {
		if s.Polygonal == nil {
			continue
		}
		tree.Insert(s)
	}
	return &CountryIndex{tree: tree}
}

// Locate returns the registry index of the first polygon containing the
// point, or NoCountry. A point on a boundary belongs to a polygon only when
// that boundary is its left or lower edge, so two countries sharing a border
// never both claim it and the outer right and upper edges claim nothing.
func (ci *CountryIndex) Locate(lat, lon float64) int32 {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return NoCountry
	}
	p := geom.Point{X: wrapLon(lon), Y: lat}
	box := &geom.Bounds{
		Min: geom.Point{X: p.X - searchEpsilon, Y: p.Y - searchEpsilon},
		Max: geom.Point{X: p.X + searchEpsilon, Y: p.Y + searchEpsilon},
	}
	best := NoCountry
	for _, item := range ci.tree.SearchIntersect(box) {
		s := item.(countryShape)
		if best != NoCountry && int32(s.index) > best {
			continue
		}
		if ownsPoint(p, s.Polygonal) {
			best = int32(s.index)
		}
	}
	return best
}

// ownsPoint applies the left/lower edge rule to p.
func ownsPoint(p geom.Point, poly geom.Polygonal) bool {
	switch p.Within(poly) {
	case geom.Inside:
		return true
	case geom.OnEdge:
		nudged := geom.Point{X: p.X + edgeNudge, Y: p.Y + edgeNudge}
		return nudged.Within(poly) == geom.Inside
	default:
		return false
	}
}

// wrapLon maps longitudes onto [-180, 180).
func wrapLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// CountryMask assigns each grid cell a registry index or NoCountry.
type CountryMask struct {
	Grid   Grid
	Values []int32
}

// Assign rasterises the country polygons onto g by cell-centre containment.
func (ci *CountryIndex) Assign(g Grid) CountryMask {
	m := CountryMask{Grid: g, Values: make([]int32, g.Cells())}
	for y, lat := range g.Lats {
		for x, lon := range g.Lons {
			m.Values[g.Index(y, x)] = ci.Locate(lat, lon)
		}
	}
	return m
}

// Regions returns the distinct registry indices present in the mask, ascending.
func (m CountryMask) Regions() []int {
	seen := make(map[int32]struct{})
	for _, v := range m.Values {
		if v != NoCountry {
			seen[v] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, int(v))
	}
	slices.Sort(out)
	return out
}

// CellsByRegion groups flat cell indices by registry index.
func (m CountryMask) CellsByRegion() map[int][]int {
	out := make(map[int][]int)
	for i, v := range m.Values {
		if v == NoCountry {
			continue
		}
		out[int(v)] = append(out[int(v)], i)
	}
	return out
}

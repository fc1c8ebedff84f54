package netcdf

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// DroughtDataset keeps the drought-index file open and serves time windows
// of it, so the whole series never has to be resident.
type DroughtDataset struct {
	path   string
	name   string
	group  api.Group
	getter api.VarGetter
	pack   packing
	times  []time.Time
	grid   domain.Grid
}

// OpenDrought opens path and reads the coordinates of variable.
func OpenDrought(path, variable string) (*DroughtDataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d, err := newDroughtDataset(g, path, variable)
	if err != nil {
		g.Close()
		return nil, err
	}
	return d, nil
}

func newDroughtDataset(g api.Group, path, variable string) (*DroughtDataset, error) {
	name, vg, l, err := pickVariable(g, variable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	times, err := readTimes(g, l.time)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lats, err := readCoord(g, l.lat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lons, err := readCoord(g, l.lon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &DroughtDataset{
		path:   path,
		name:   name,
		group:  g,
		getter: vg,
		pack:   packingOf(vg.Attributes()),
		times:  times,
		grid:   domain.Grid{Lats: lats, Lons: lons},
	}, nil
}

// Times returns the dataset's time axis.
func (d *DroughtDataset) Times() []time.Time { return d.times }

// Window reads the steps within [from, to] plus one neighbouring step on each
// side, so nearest-neighbour lookups near the edges see the same candidates as
// they would against the full series.
func (d *DroughtDataset) Window(ctx context.Context, from, to time.Time) (domain.Field3D, error) {
	if err := ctx.Err(); err != nil {
		return domain.Field3D{}, err
	}
	begin, end, ok := windowRange(d.times, from, to)
	if !ok {
		return domain.Field3D{Name: d.name, Grid: d.grid}, nil
	}

	raw, err := d.getter.GetSlice(int64(begin), int64(end))
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: read %s[%d:%d]: %w", d.path, d.name, begin, end, err)
	}
	vals, err := flatten(raw)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %s: %w", d.path, d.name, err)
	}
	d.pack.apply(vals)

	f := domain.Field3D{
		Name:   d.name,
		Times:  d.times[begin:end],
		Grid:   d.grid,
		Values: vals,
	}
	if err := f.Validate(); err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", d.path, err)
	}
	return f, nil
}

// windowRange returns the half-open index range covering [from, to] on an
// ascending axis, widened by one step on each side.
func windowRange(times []time.Time, from, to time.Time) (begin, end int, ok bool) {
	n := len(times)
	if n == 0 || to.Before(from) {
		return 0, 0, false
	}
	first := sort.Search(n, func(i int) bool { return !times[i].Before(from) })
	last := sort.Search(n, func(i int) bool { return times[i].After(to) }) - 1
	begin = max(first-1, 0)
	end = min(last+2, n)
	if end <= begin {
		return 0, 0, false
	}
	return begin, end, true
}

// Close releases the file.
func (d *DroughtDataset) Close() error {
	d.group.Close()
	return nil
}

// Package netcdf reads gridded daily climate fields and the drought index from
// netCDF files.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// Source discovers climate files by glob pattern and loads each as a field.
type Source struct {
	pattern  string
	variable string
	logger   *slog.Logger
}

// NewSource creates a Source. An empty variable selects the first
// (time, lat, lon) data variable of each file.
func NewSource(pattern, variable string, logger *slog.Logger) *Source {
	return &Source{pattern: pattern, variable: variable, logger: logger}
}

// Discover returns the files matching the pattern in lexical order.
func (s *Source) Discover(_ context.Context) ([]string, error) {
	files, err := filepath.Glob(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", s.pattern, err)
	}
	slices.Sort(files)
	return files, nil
}

// Load reads the whole data variable of one file.
func (s *Source) Load(ctx context.Context, path string) (domain.Field3D, error) {
	if err := ctx.Err(); err != nil {
		return domain.Field3D{}, err
	}
	f, err := ReadField(path, s.variable)
	if err != nil {
		return domain.Field3D{}, err
	}
	s.logger.Debug("climate file loaded",
		"file", path,
		"variable", f.Name,
		"times", len(f.Times),
		"lats", f.Grid.NY(),
		"lons", f.Grid.NX(),
	)
	return f, nil
}

// ReadField opens path and decodes variable (or the first data variable).
func ReadField(path, variable string) (domain.Field3D, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer g.Close()

	name, vg, l, err := pickVariable(g, variable)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", path, err)
	}
	times, err := readTimes(g, l.time)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", path, err)
	}
	lats, err := readCoord(g, l.lat)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", path, err)
	}
	lons, err := readCoord(g, l.lon)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", path, err)
	}

	raw, err := vg.Values()
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: read %s: %w", path, name, err)
	}
	vals, err := flatten(raw)
	if err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %s: %w", path, name, err)
	}
	packingOf(vg.Attributes()).apply(vals)

	field := domain.Field3D{
		Name:   name,
		Times:  times,
		Grid:   domain.Grid{Lats: lats, Lons: lons},
		Values: vals,
	}
	if err := field.Validate(); err != nil {
		return domain.Field3D{}, fmt.Errorf("%s: %w", path, err)
	}
	return field, nil
}

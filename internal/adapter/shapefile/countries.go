// Package shapefile decodes the country-boundary layer.
package shapefile

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// ReadCountries decodes every row of a polygon shapefile with all of its
// attribute columns, in file order.
func ReadCountries(path string) (domain.CountryLayer, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return domain.CountryLayer{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer d.Close()

	var columns []string
	for _, f := range d.Fields() {
		columns = append(columns, cleanField(f.String()))
	}

	layer := domain.CountryLayer{Columns: columns}
	for row := 0; ; row++ {
		g, fields, more := d.DecodeRowFields(columns...)
		if !more {
			break
		}
		feature := domain.CountryFeature{Attributes: make(map[string]string, len(fields))}
		for k, v := range fields {
			feature.Attributes[k] = cleanField(v)
		}
		if g != nil {
			poly, ok := g.(geom.Polygonal)
			if !ok {
				return domain.CountryLayer{}, fmt.Errorf("%s: row %d: %w: geometry %T is not a polygon", path, row, domain.ErrSchema, g)
			}
			feature.Geometry = poly
		}
		layer.Features = append(layer.Features, feature)
	}
	if err := d.Error(); err != nil {
		return domain.CountryLayer{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return layer, nil
}

// cleanField strips the NUL padding and blanks of dBase values.
func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

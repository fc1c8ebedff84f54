// Package raster reads the harvested-area GeoTIFF through GDAL.
package raster

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

var registerOnce sync.Once

// ReadGeoTIFF loads the first band of a north-up raster. Pixels equal to the
// band's no-data value, and non-finite pixels, become NaN.
func ReadGeoTIFF(path string) (domain.Raster, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return domain.Raster{}, fmt.Errorf("%s: geotransform: %w", path, err)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return domain.Raster{}, fmt.Errorf("%s: no raster bands", path)
	}
	st := ds.Structure()
	band := bands[0]

	vals := make([]float64, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, vals, st.SizeX, st.SizeY); err != nil {
		return domain.Raster{}, fmt.Errorf("%s: read band 1: %w", path, err)
	}
	nodata, hasNoData := band.NoData()

	return newRaster(gt, st.SizeX, st.SizeY, vals, nodata, hasNoData)
}

// newRaster validates the affine transform and masks no-data pixels.
func newRaster(gt [6]float64, width, height int, vals []float64, nodata float64, hasNoData bool) (domain.Raster, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return domain.Raster{}, errors.New("rotated rasters are not supported")
	}
	if gt[1] == 0 || gt[5] == 0 {
		return domain.Raster{}, errors.New("raster has a zero pixel size")
	}
	if len(vals) != width*height {
		return domain.Raster{}, fmt.Errorf("%d pixels for a %dx%d raster", len(vals), width, height)
	}
	for i, v := range vals {
		if math.IsInf(v, 0) || (hasNoData && (v == nodata || (math.IsNaN(nodata) && math.IsNaN(v)))) {
			vals[i] = math.NaN()
		}
	}
	return domain.Raster{
		X0:     gt[0],
		DX:     gt[1],
		Y0:     gt[3],
		DY:     gt[5],
		Width:  width,
		Height: height,
		Values: vals,
	}, nil
}

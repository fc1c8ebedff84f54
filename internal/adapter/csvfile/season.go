// Package csvfile reads the growing-season calendar and writes the result table.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// Growing-season CSV columns.
const (
	ColLatitude   = "Latitude"
	ColLongitude  = "Longitude"
	ColPlantStart = "plant.start.day"
	ColHarvestEnd = "harvest.end.day"
)

// ReadGrowingSeason loads the calendar points from a CSV file.
func ReadGrowingSeason(path string) ([]domain.SeasonPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	points, err := DecodeGrowingSeason(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// DecodeGrowingSeason parses growing-season rows. Empty and NA cells are NaN.
func DecodeGrowingSeason(r io.Reader) ([]domain.SeasonPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty growing-season table", domain.ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := make([]int, 4)
	for i, col := range []string{ColLatitude, ColLongitude, ColPlantStart, ColHarvestEnd} {
		idx[i] = slices.Index(header, col)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: growing-season table has no %q column; available columns: %s",
				domain.ErrSchema, col, strings.Join(header, ", "))
		}
	}

	var points []domain.SeasonPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var v [4]float64
		for i, col := range idx {
			if col >= len(rec) {
				v[i] = math.NaN()
				continue
			}
			if v[i], err = parseCell(rec[col]); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[col], err)
			}
		}
		points = append(points, domain.SeasonPoint{Lat: v[0], Lon: v[1], PlantDOY: v[2], HarvestDOY: v[3]})
	}
	return points, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "NULL":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

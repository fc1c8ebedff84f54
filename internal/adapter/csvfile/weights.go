package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// EncodeCountryAreas writes the per-country harvested-area summary.
func EncodeCountryAreas(w io.Writer, areas []domain.CountryArea) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"country", "country_iso", "harvested_area"}); err != nil {
		return err
	}
	for _, a := range areas {
		rec := []string{a.Country.Name, a.Country.ISO3, strconv.FormatFloat(a.Area, 'f', -1, 64)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", a.Country.ISO3, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

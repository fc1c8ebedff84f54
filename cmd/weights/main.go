// Command weights lists the countries that carry harvested area, with the
// total area assigned to each. It reads the same configuration as the
// exposure command and is useful for checking the boundary layer against the
// harvested-area raster before a full run.
//
// Usage:
//
//	EXPOSURE_CONFIG=exposure.yaml go run ./cmd/weights -out output/weights.csv
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/raster"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/crop-exposure-etl/internal/config"
	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
	"github.com/couchcryptid/crop-exposure-etl/internal/observability"
)

func main() {
	out := flag.String("out", "", "output CSV path (default stdout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, *out, logger); err != nil {
		logger.Error("weights summary failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, out string, logger *slog.Logger) error {
	layer, err := shapefile.ReadCountries(cfg.CountriesFile)
	if err != nil {
		return fmt.Errorf("country boundaries: %w", err)
	}
	reg, err := domain.NewRegistry(layer, cfg.CountryNameColumn, cfg.ExcludeISOCodes)
	if err != nil {
		return fmt.Errorf("country boundaries %s: %w", cfg.CountriesFile, err)
	}
	area, err := raster.ReadGeoTIFF(cfg.HarvestedAreaFile)
	if err != nil {
		return fmt.Errorf("harvested area: %w", err)
	}

	areas := domain.SummarizeWeights(area, domain.NewCountryIndex(reg), reg)
	logger.Info("harvested area summarised", "countries", len(areas), "registered", reg.Len())

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return csvfile.EncodeCountryAreas(w, areas)
}

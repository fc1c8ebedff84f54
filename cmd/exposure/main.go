package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/crop-exposure-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crop-exposure-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/raster"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/crop-exposure-etl/internal/config"
	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
	"github.com/couchcryptid/crop-exposure-etl/internal/observability"
	"github.com/couchcryptid/crop-exposure-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exposure run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	inputs, closeInputs, err := loadInputs(cfg, logger)
	if err != nil {
		return err
	}
	defer closeInputs()

	proc, err := pipeline.NewChunkProcessor(inputs, logger, metrics)
	if err != nil {
		return err
	}

	loaders, closeLoaders := resultLoaders(cfg, clock, logger)
	defer closeLoaders()

	src := netcdf.NewSource(cfg.ClimateFilesPattern, "", logger)
	p := pipeline.New(src, proc, logger, metrics, clock, loaders...)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	if err := p.Run(ctx); err != nil {
		return err
	}
	logger.Info("exposure table written", "path", cfg.OutputFile, "metric", cfg.Metric)
	return nil
}

// loadInputs reads the static layers shared by every climate file.
func loadInputs(cfg *config.Config, logger *slog.Logger) (pipeline.Inputs, func(), error) {
	noop := func() {}

	metric, err := domain.NewMetric(cfg.Metric, cfg.MetricSettings())
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("metric: %w", err)
	}
	resampling, err := domain.ParseResampling(cfg.AreaResampling)
	if err != nil {
		return pipeline.Inputs{}, noop, err
	}

	layer, err := shapefile.ReadCountries(cfg.CountriesFile)
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("country boundaries: %w", err)
	}
	reg, err := domain.NewRegistry(layer, cfg.CountryNameColumn, cfg.ExcludeISOCodes)
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("country boundaries %s: %w", cfg.CountriesFile, err)
	}
	logger.Info("country boundaries loaded", "countries", reg.Len(), "features", len(layer.Features))

	points, err := csvfile.ReadGrowingSeason(cfg.GrowingSeasonFile)
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("growing season: %w", err)
	}
	calendar := domain.NewSeasonCalendar(points)
	logger.Info("growing season loaded", "points", len(points), "lats", calendar.Grid.NY(), "lons", calendar.Grid.NX())

	area, err := raster.ReadGeoTIFF(cfg.HarvestedAreaFile)
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("harvested area: %w", err)
	}
	logger.Info("harvested area loaded", "width", area.Width, "height", area.Height)

	in := pipeline.Inputs{
		Metric:     metric,
		Calendar:   calendar,
		Area:       area,
		Resampling: resampling,
		Registry:   reg,
		Countries:  domain.NewCountryIndex(reg),
	}
	if !metric.NeedsDrought() {
		return in, noop, nil
	}

	drought, err := netcdf.OpenDrought(cfg.DroughtFile, cfg.DroughtVariable)
	if err != nil {
		return pipeline.Inputs{}, noop, fmt.Errorf("drought index: %w", err)
	}
	logger.Info("drought index opened", "path", cfg.DroughtFile, "times", len(drought.Times()))
	in.Drought = drought
	return in, func() {
		if err := drought.Close(); err != nil {
			logger.Error("drought file close error", "error", err)
		}
	}, nil
}

// resultLoaders returns the configured sinks with the CSV writer last, so a
// failed publish stops the run before the output file is created.
func resultLoaders(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) ([]pipeline.ResultLoader, func()) {
	var loaders []pipeline.ResultLoader
	closeFn := func() {}
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, clock, logger)
		closeFn = func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		loaders = append(loaders, writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	return append(loaders, csvfile.NewResultWriter(cfg.OutputFile, logger)), closeFn
}

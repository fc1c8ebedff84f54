package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
	"github.com/couchcryptid/crop-exposure-etl/internal/observability"
)

// DroughtSource serves the drought index for a time range.
type DroughtSource interface {
	Window(ctx context.Context, from, to time.Time) (domain.Field3D, error)
}

// Inputs are the static layers shared by every climate file.
type Inputs struct {
	Metric     domain.ExposureMetric
	Calendar   domain.SeasonCalendar
	Area       domain.Raster
	Resampling domain.Resampling
	Registry   *domain.Registry
	Countries  *domain.CountryIndex
	Drought    DroughtSource
}

// gridLayers are the static layers moved onto one climate grid.
type gridLayers struct {
	calendar domain.SeasonCalendar
	mask     domain.CountryMask
	weights  domain.Field2D
}

// ChunkProcessor computes per-country exposure rows for one climate file.
// The country mask, calendar and area weights are rebuilt for every file so
// no file depends on the grid of the one before it.
type ChunkProcessor struct {
	in      Inputs
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewChunkProcessor checks that the inputs cover what the metric needs.
func NewChunkProcessor(in Inputs, logger *slog.Logger, metrics *observability.Metrics) (*ChunkProcessor, error) {
	if in.Metric == nil {
		return nil, fmt.Errorf("chunk processor: no metric")
	}
	if in.Registry == nil || in.Countries == nil {
		return nil, fmt.Errorf("chunk processor: no country registry")
	}
	if in.Metric.NeedsDrought() && in.Drought == nil {
		return nil, fmt.Errorf("chunk processor: %s: %w", in.Metric.Name(), domain.ErrMissingDrought)
	}
	if in.Resampling == "" {
		in.Resampling = domain.ResampleNearest
	}
	return &ChunkProcessor{in: in, logger: logger, metrics: metrics}, nil
}

// Columns returns the metric's value columns.
func (c *ChunkProcessor) Columns() []string { return c.in.Metric.Columns() }

// Process aligns the drought index and static layers to the field, computes
// annual per-cell exposure and aggregates it by country.
func (c *ChunkProcessor) Process(ctx context.Context, field domain.Field3D) ([]domain.ResultRow, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}
	if len(field.Times) == 0 || field.Grid.Cells() == 0 {
		c.logger.Warn("empty climate field", "variable", field.Name)
		return nil, nil
	}

	in := domain.ExposureInputs{Climate: field}
	if c.in.Metric.NeedsDrought() {
		climate, drought, ok, err := c.alignDrought(ctx, field)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		in.Climate, in.Drought = climate, &drought
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	layers := c.alignLayers(in.Climate.Grid)
	in.Season = domain.NewSeasonMask(in.Climate.Times, layers.calendar)

	annual, err := c.in.Metric.Annual(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.in.Metric.Name(), err)
	}
	rows, err := domain.AggregateByCountry(annual, layers.mask, layers.weights, c.in.Registry)
	if err != nil {
		return nil, err
	}
	c.metrics.CountriesPerFile.Observe(float64(len(layers.mask.Regions())))
	return rows, nil
}

// alignDrought reads the drought window covering field, restricts field to
// the days the drought series covers and moves the drought index onto it.
// ok is false when the two series do not overlap.
func (c *ChunkProcessor) alignDrought(ctx context.Context, field domain.Field3D) (climate, drought domain.Field3D, ok bool, err error) {
	first, last, _ := field.TimeRange()
	raw, err := c.in.Drought.Window(ctx, first.UTC().Truncate(24*time.Hour), last)
	if err != nil {
		return domain.Field3D{}, domain.Field3D{}, false, fmt.Errorf("read drought window: %w", err)
	}

	from, to, overlap := domain.OverlapWindow(domain.DailyTimeIndex(raw.Times, field.Times))
	if !overlap {
		c.logger.Warn("climate and drought series do not overlap",
			"variable", field.Name,
			"first", first,
			"last", last,
		)
		return domain.Field3D{}, domain.Field3D{}, false, nil
	}
	if from > 0 || to < len(field.Times) {
		c.logger.Info("restricting climate field to drought coverage",
			"variable", field.Name,
			"kept", to-from,
			"total", len(field.Times),
		)
	}
	climate = domain.RestrictTime(field, field.Times[from], field.Times[to-1])

	drought, err = domain.AlignToReference(raw, climate)
	if err != nil {
		return domain.Field3D{}, domain.Field3D{}, false, err
	}
	return climate, drought, true, nil
}

func (c *ChunkProcessor) alignLayers(g domain.Grid) gridLayers {
	l := gridLayers{
		calendar: c.in.Calendar.Reindex(g),
		mask:     c.in.Countries.Assign(g),
		weights:  domain.AreaWeights(domain.ReprojectMatch(c.in.Area, g, c.in.Resampling)),
	}
	c.logger.Debug("static layers aligned",
		"lats", g.NY(),
		"lons", g.NX(),
		"countries", len(l.mask.Regions()),
	)
	return l
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
	"github.com/couchcryptid/crop-exposure-etl/internal/observability"
)

// ErrNoInputFiles is returned when discovery finds no climate files.
var ErrNoInputFiles = errors.New("no input files")

// FileSource discovers climate files and loads each as a daily field.
type FileSource interface {
	Discover(ctx context.Context) ([]string, error)
	Load(ctx context.Context, path string) (domain.Field3D, error)
}

// Processor turns one climate field into (year, country) rows.
type Processor interface {
	Columns() []string
	Process(ctx context.Context, field domain.Field3D) ([]domain.ResultRow, error)
}

// ResultLoader receives the finalised table.
type ResultLoader interface {
	Name() string
	Load(ctx context.Context, columns []string, rows []domain.ResultRow) error
}

// Run states reported by Status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Progress is a snapshot of a run.
type Progress struct {
	State       string `json:"state"`
	FilesTotal  int    `json:"files_total"`
	FilesDone   int    `json:"files_done"`
	CurrentFile string `json:"current_file,omitempty"`
	Rows        int    `json:"rows"`
}

// Pipeline runs the per-file exposure computation over every discovered file
// and hands the finalised table to the loaders. Files are processed one at a
// time in discovery order; any failure aborts the run before loading.
// Loaders run in the order given and the first failing loader stops the
// rest, so a sink that must not be left half-written belongs last.
type Pipeline struct {
	source    FileSource
	processor Processor
	loaders   []ResultLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool

	mu       sync.Mutex
	progress Progress
}

// New creates a Pipeline with the given stages and observability.
func New(src FileSource, proc Processor, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, loaders ...ResultLoader) *Pipeline {
	return &Pipeline{
		source:    src,
		processor: proc,
		loaders:   loaders,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		progress:  Progress{State: StateIdle},
	}
}

// CheckReadiness returns nil once at least one file has been processed,
// or an error describing why the run is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any files yet")
	}
	return nil
}

// Status returns a snapshot of the run's progress.
func (p *Pipeline) Status() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Pipeline) update(fn func(*Progress)) {
	p.mu.Lock()
	fn(&p.progress)
	p.mu.Unlock()
}

// Run processes every file and writes the result table. Nothing is loaded
// unless every file succeeds.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer func() {
		if err != nil {
			p.update(func(pr *Progress) { pr.State = StateFailed; pr.CurrentFile = "" })
		}
	}()

	files, err := p.source.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover input files: %w", err)
	}
	if len(files) == 0 {
		return ErrNoInputFiles
	}
	p.logger.Info("pipeline started", "files", len(files), "columns", p.processor.Columns())
	p.update(func(pr *Progress) { *pr = Progress{State: StateRunning, FilesTotal: len(files)} })

	var rows []domain.ResultRow
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", path, err)
		}
		fileRows, err := p.processFile(ctx, path)
		if err != nil {
			return err
		}
		rows = append(rows, fileRows...)
		p.update(func(pr *Progress) { pr.FilesDone++; pr.Rows = len(rows) })
	}

	table, dropped := domain.FinalizeRows(rows)
	p.metrics.RowsDropped.Add(float64(dropped))
	p.logger.Info("results finalised", "rows", len(table), "dropped", dropped)

	columns := p.processor.Columns()
	for _, l := range p.loaders {
		if err := l.Load(ctx, columns, table); err != nil {
			return fmt.Errorf("load results to %s: %w", l.Name(), err)
		}
		p.metrics.ResultsPublished.WithLabelValues(l.Name()).Add(float64(len(table)))
	}

	p.update(func(pr *Progress) { pr.State = StateDone; pr.CurrentFile = ""; pr.Rows = len(table) })
	p.logger.Info("pipeline finished", "files", len(files), "rows", len(table))
	return nil
}

func (p *Pipeline) processFile(ctx context.Context, path string) ([]domain.ResultRow, error) {
	start := p.clock.Now()
	p.update(func(pr *Progress) { pr.CurrentFile = path })
	p.logger.Info("processing file", "file", path)

	field, err := p.source.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	rows, err := p.processor.Process(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", path, err)
	}

	p.metrics.FilesProcessed.Inc()
	p.metrics.RowsProduced.Add(float64(len(rows)))
	p.metrics.FileProcessingDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("file processed", "file", path, "rows", len(rows), "duration", p.clock.Since(start))
	return rows, nil
}

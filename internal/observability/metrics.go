package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crop_exposure"

// Metrics holds the Prometheus counters, histograms, and gauges for an exposure run.
type Metrics struct {
	FilesProcessed  prometheus.Counter
	RowsProduced    prometheus.Counter
	RowsDropped     prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Per-file processing metrics.
	FileProcessingDuration prometheus.Histogram
	CountriesPerFile       prometheus.Histogram

	// Result publishing.
	ResultsPublished *prometheus.CounterVec // labels: sink={csv,kafka}
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total climate files processed.",
		}),
		RowsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_produced_total",
			Help:      "Total (year, country) rows produced before finalisation.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped from the final table for missing values.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		FileProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      "Duration of loading and processing one climate file.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
		CountriesPerFile: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "countries_per_file",
			Help:      "Number of countries with grid cells in a climate file.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 150, 200, 260},
		}),
		ResultsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      "Result rows handed to each sink.",
		}, []string{"sink"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesProcessed,
		m.RowsProduced,
		m.RowsDropped,
		m.PipelineRunning,
		m.FileProcessingDuration,
		m.CountriesPerFile,
		m.ResultsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

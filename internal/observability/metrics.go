package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// parsing pipeline.
type Metrics struct {
	FilesProcessed  *prometheus.CounterVec // labels: format, outcome={success,error}
	RecordsProduced prometheus.Counter
	LineErrors      prometheus.Counter
	MergeConflicts  prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Per-file processing metrics.
	RecordsPerFile         prometheus.Histogram
	FileProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dwd_etl",
			Name:      "files_processed_total",
			Help:      "Product files processed, by format and outcome.",
		}, []string{"format", "outcome"}),
		RecordsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwd_etl",
			Name:      "records_produced_total",
			Help:      "Total merged weather records published to the sink.",
		}),
		LineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwd_etl",
			Name:      "line_errors_total",
			Help:      "Total malformed data lines skipped during parsing.",
		}),
		MergeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwd_etl",
			Name:      "merge_conflicts_total",
			Help:      "Total conflicting parameter values resolved by the merge policy.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dwd_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		RecordsPerFile: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dwd_etl",
			Name:      "records_per_file",
			Help:      "Number of merged records produced from one product file.",
			Buckets:   []float64{1, 10, 100, 1000, 10000, 100000},
		}),
		FileProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dwd_etl",
			Name:      "file_processing_duration_seconds",
			Help:      "Duration of a complete parse-merge-publish cycle for one file.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.FilesProcessed,
		m.RecordsProduced,
		m.LineErrors,
		m.MergeConflicts,
		m.PipelineRunning,
		m.RecordsPerFile,
		m.FileProcessingDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FilesProcessed:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dwd_etl", Name: "files_processed_total"}, []string{"format", "outcome"}),
		RecordsProduced:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dwd_etl", Name: "records_produced_total"}),
		LineErrors:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dwd_etl", Name: "line_errors_total"}),
		MergeConflicts:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dwd_etl", Name: "merge_conflicts_total"}),
		PipelineRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dwd_etl", Name: "pipeline_running"}),
		RecordsPerFile:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dwd_etl", Name: "records_per_file"}),
		FileProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dwd_etl", Name: "file_processing_duration_seconds"}),
	}
}

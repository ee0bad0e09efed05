// Package metrics provides Prometheus metrics for export runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one export process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ShapesBuilt   *prometheus.CounterVec
	ItemFailures  *prometheus.CounterVec
	ModelsLoaded  *prometheus.CounterVec
	BooleanOps    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	FilesWritten  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ShapesBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otx_shapes_built_total",
				Help: "Total number of shapes added to export buckets",
			},
			[]string{"bucket"},
		),
		ItemFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otx_item_failures_total",
				Help: "Board items that could not be converted",
			},
			[]string{"stage"},
		),
		ModelsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otx_models_loaded_total",
				Help: "3D model resolutions by result",
			},
			[]string{"result"},
		),
		BooleanOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otx_boolean_ops_total",
				Help: "Boolean operations issued to the kernel",
			},
			[]string{"op", "result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "otx_stage_duration_seconds",
				Help:    "Time spent per export stage",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		FilesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otx_files_written_total",
				Help: "Output files written by format",
			},
			[]string{"format"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.ShapesBuilt, m.ItemFailures, m.ModelsLoaded, m.BooleanOps, m.StageDuration, m.FilesWritten)
	}
	return m
}

// Shape counts a shape filed into bucket
func (m *Metrics) Shape(bucket string) {
	if m == nil {
		return
	}
	m.ShapesBuilt.WithLabelValues(bucket).Inc()
}

// Failure counts a degraded item in stage
func (m *Metrics) Failure(stage string) {
	if m == nil {
		return
	}
	m.ItemFailures.WithLabelValues(stage).Inc()
}

// Model counts a model resolution: "loaded", "cached", "substituted",
// "missing" or "failed"
func (m *Metrics) Model(result string) {
	if m == nil {
		return
	}
	m.ModelsLoaded.WithLabelValues(result).Inc()
}

// Boolean counts a cut or fuse
func (m *Metrics) Boolean(op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "degraded"
	}
	m.BooleanOps.WithLabelValues(op, result).Inc()
}

// File counts a written output
func (m *Metrics) File(format string) {
	if m == nil {
		return
	}
	m.FilesWritten.WithLabelValues(format).Inc()
}

// Stage starts timing stage; call the returned function when it ends
func (m *Metrics) Stage(stage string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile dumps every metric of g to path in the text exposition
// format, for node exporter's textfile collector
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

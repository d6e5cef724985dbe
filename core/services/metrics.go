package services

import (
	"time"

	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics counts generation runs. A one-shot CLI has nothing to scrape,
// so the registry is exported in the node_exporter textfile format.
type RunMetrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artgen_runs_total",
			Help: "Generation runs by style, backend and outcome.",
		}, []string{"style", "backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artgen_run_duration_seconds",
			Help:    "Wall time of generation runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"style", "backend"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "artgen_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// ObserveRun records one run. outcome is "success" or an error kind.
func (m *RunMetrics) ObserveRun(style, backend, outcome string, duration time.Duration) {
	m.runs.WithLabelValues(style, backend, outcome).Inc()
	m.duration.WithLabelValues(style, backend).Observe(duration.Seconds())
	if outcome == "success" {
		m.lastSuccess.SetToCurrentTime()
	}
}

func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically writes the metrics to path. An empty path is a
// no-op.
func (m *RunMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	xlog.Debug("Writing metrics", "path", path)
	return prometheus.WriteToTextfile(path, m.registry)
}

package bench

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one bench invocation.
type Metrics struct {
	registry *prometheus.Registry

	RunDuration *prometheus.HistogramVec
	Frames      *prometheus.CounterVec
	MeanSeconds *prometheus.GaugeVec
}

// NewMetrics registers the bench collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ttstrain_bench_run_duration_seconds",
			Help:    "Wall time of each benchmarked kernel run",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op", "cold"}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ttstrain_bench_frames_total",
			Help: "Total output frames produced across runs",
		}, []string{"op"}),
		MeanSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ttstrain_bench_mean_duration_seconds",
			Help: "Mean run wall time of the last bench",
		}, []string{"op"}),
	}
}

// Observe records every run of op.
func (m *Metrics) Observe(op string, runs []RunResult) {
	for _, r := range runs {
		cold := "false"
		if r.Cold {
			cold = "true"
		}

		m.RunDuration.WithLabelValues(op, cold).Observe(r.Duration.Seconds())
		m.Frames.WithLabelValues(op).Add(float64(r.Frames))
	}

	m.MeanSeconds.WithLabelValues(op).Set(ComputeStats(Durations(runs)).Mean.Seconds())
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the collected metrics in the Prometheus text format,
// suitable for the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("bench: write metrics %s: %w", path, err)
	}

	return nil
}

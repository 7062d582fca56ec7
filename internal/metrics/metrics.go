// Package metrics exposes render counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/memory-images/internal/progress"
)

const namespace = "memory_images"

// Render outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	renders       *prometheus.CounterVec
	renderSeconds prometheus.Histogram
	phaseSeconds  *prometheus.HistogramVec
	renderImages  prometheus.Histogram
	inFlight      prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Renders by outcome.",
		}, []string{"outcome"}),
		renderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Wall time of successful and failed renders.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_phase_duration_seconds",
			Help:      "Wall time of each completed render phase.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"phase"}),
		renderImages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_images",
			Help:      "Number of images per render request.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "renders_in_flight",
			Help:      "Renders currently running.",
		}),
	}

	m.registry.MustRegister(
		m.renders,
		m.renderSeconds,
		m.phaseSeconds,
		m.renderImages,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RenderStarted records the start of a render of n images.
func (m *Metrics) RenderStarted(images int) {
	m.inFlight.Inc()
	m.renderImages.Observe(float64(images))
}

// RenderFinished records the outcome and duration of a started render.
func (m *Metrics) RenderFinished(outcome string, d time.Duration) {
	m.inFlight.Dec()
	m.renders.WithLabelValues(outcome).Inc()
	m.renderSeconds.Observe(d.Seconds())
}

// RenderRejected counts a render refused before it started.
func (m *Metrics) RenderRejected() {
	m.renders.WithLabelValues(OutcomeRejected).Inc()
}

// ObservePhase records the duration of one completed phase.
func (m *Metrics) ObservePhase(phase progress.Phase, d time.Duration) {
	m.phaseSeconds.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// Package observability exposes Prometheus metrics for the monitoring
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all pipeline metric collectors. Create one per process and
// share it across components.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed   prometheus.Counter
	FramesSkipped     prometheus.Counter
	CaptureErrors     prometheus.Counter
	InferenceDuration prometheus.Histogram
	DetectionCount    prometheus.Histogram

	DetectionsConfirmed *prometheus.CounterVec
	ArbiterDecisions    *prometheus.CounterVec

	GovernorDegraded prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zombiewatch_frames_processed_total",
			Help: "Number of frames run through inference.",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zombiewatch_frames_skipped_total",
			Help: "Number of frames skipped by the frame-skip ratio.",
		}),
		CaptureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zombiewatch_capture_errors_total",
			Help: "Number of failed screen captures.",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zombiewatch_inference_duration_seconds",
			Help:    "Per-frame inference latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		DetectionCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zombiewatch_detection_count",
			Help:    "Threats counted per processed frame.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		DetectionsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zombiewatch_detections_confirmed_total",
			Help: "Confirmed detections by severity.",
		}, []string{"severity"}),
		ArbiterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zombiewatch_arbiter_decisions_total",
			Help: "Alert lease decisions by outcome.",
		}, []string{"outcome"}),
		GovernorDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zombiewatch_governor_degraded",
			Help: "1 while the performance governor is in a degraded profile.",
		}),
	}

	collectors := []prometheus.Collector{
		m.FramesProcessed,
		m.FramesSkipped,
		m.CaptureErrors,
		m.InferenceDuration,
		m.DetectionCount,
		m.DetectionsConfirmed,
		m.ArbiterDecisions,
		m.GovernorDegraded,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordArbiterDecision counts a lease decision. Grants use outcome
// "granted", denials use the deny reason.
func (m *Metrics) RecordArbiterDecision(outcome string) {
	if outcome == "" {
		outcome = "granted"
	}
	m.ArbiterDecisions.WithLabelValues(outcome).Inc()
}

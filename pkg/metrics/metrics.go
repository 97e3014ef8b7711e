package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collaborator kinds used as the "kind" label.
const (
	KindObjects  = "objects"
	KindFaces    = "faces"
	KindGaze     = "gaze"
	KindHeadPose = "head_pose"
)

// Metrics holds the proctoring service counters on a private registry.
type Metrics struct {
	FramesProcessed atomic.Uint64
	FramesRejected  atomic.Uint64
	EvidenceStored  atomic.Uint64
	EvidenceFailed  atomic.Uint64

	collaboratorFailures *prometheus.CounterVec
	malformedDetections  *prometheus.CounterVec
	violations           *prometheus.CounterVec
	frameLatency         prometheus.Histogram

	activeSessions func() float64
	registry       *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_collaborator_failures_total",
			Help: "Perception collaborator calls that failed and were replaced by a neutral value",
		}, []string{"kind"}),
		malformedDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_malformed_detections_total",
			Help: "Detections skipped because they were malformed",
		}, []string{"reason"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_violations_total",
			Help: "Violation tags emitted",
		}, []string{"tag"}),
		frameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_frame_duration_seconds",
			Help:    "End to end processing time of one frame",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_frames_processed_total",
			Help: "Frames that went through the violation pipeline",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_frames_rejected_total",
			Help: "Frames rejected before evaluation (missing or undecodable image)",
		},
		func() float64 { return float64(m.FramesRejected.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_evidence_stored_total",
			Help: "Evidence frames uploaded to object storage",
		},
		func() float64 { return float64(m.EvidenceStored.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_evidence_failed_total",
			Help: "Evidence uploads that failed",
		},
		func() float64 { return float64(m.EvidenceFailed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_active_sessions",
			Help: "Sessions currently holding a gaze window",
		},
		func() float64 {
			if m.activeSessions == nil {
				return 0
			}
			return m.activeSessions()
		},
	))

	m.registry.MustRegister(m.collaboratorFailures, m.malformedDetections, m.violations, m.frameLatency)
}

// TrackActiveSessions sets the source of the active sessions gauge.
func (m *Metrics) TrackActiveSessions(fn func() int) {
	m.activeSessions = func() float64 { return float64(fn()) }
}

func (m *Metrics) CollaboratorFailed(kind string) {
	m.collaboratorFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) MalformedDetection(reason string) {
	m.malformedDetections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ViolationsEmitted(tags []string) {
	for _, tag := range tags {
		m.violations.WithLabelValues(tag).Inc()
	}
}

func (m *Metrics) ObserveFrame(seconds float64) {
	m.frameLatency.Observe(seconds)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

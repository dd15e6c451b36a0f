package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const latencyWindowSize = 512

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	RecordingSessions  prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	OutboundMessages   *prometheus.CounterVec
	CollaboratorErrors *prometheus.CounterVec
	SessionScores      prometheus.Histogram
	SessionDuration    prometheus.Histogram
	DetectLatency      prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec

	latency *latencyWindow
}

// NewMetrics registers instruments on the default registry. Call it once per process.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers instruments on reg; tests pass a fresh prometheus.NewRegistry().
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open practice websocket connections.",
		}),
		RecordingSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_sessions",
			Help:      "Number of practice sessions currently recording.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Practice session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OutboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound queue results by message type and result.",
		}, []string{"type", "result"}),
		CollaboratorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Recognizer, detector and persistence errors by collaborator and code.",
		}, []string{"collaborator", "code"}),
		SessionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_overall_score",
			Help:      "Overall score of saved practice sessions.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of finished practice sessions.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
		DetectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eye_detect_latency_ms",
			Help:      "Face detector call latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
		latency: newLatencyWindow(latencyWindowSize),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(stage, float64(d.Microseconds())/1000)
	if stage == StageEyeDetect {
		m.DetectLatency.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.latency.ObserveIndicator(name)
}

func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.latency.Snapshot()
}

func (m *Metrics) ResetLatency() {
	m.latency.Reset()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveCollaboratorError(collaborator, code string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(collaborator, code).Inc()
}

func (m *Metrics) ObserveSession(durationSeconds, overallScore int, saved bool) {
	if m == nil {
		return
	}
	m.SessionDuration.Observe(float64(durationSeconds))
	if saved {
		m.SessionScores.Observe(float64(overallScore))
	}
}

func (m *Metrics) RecordingChanged(recording bool) {
	if m == nil {
		return
	}
	if recording {
		m.RecordingSessions.Inc()
		return
	}
	m.RecordingSessions.Dec()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

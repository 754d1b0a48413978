// Package metrics exposes Prometheus metrics for httpsession sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
	OutcomeFailed    = "failed"
)

// Manager holds the Prometheus collectors for one session. A nil *Manager
// is valid and records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	bytesReceived prometheus.Counter
	inFlight      prometheus.Gauge
	responses     *prometheus.CounterVec
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry the
// collectors are registered on a private registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "httpsession",
		subsystem:        "session",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.tasksStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "tasks_started_total",
		Help:        "Total number of tasks that began network I/O",
		ConstLabels: m.constLabels,
	})

	m.tasksFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "tasks_finished_total",
		Help:        "Total number of finished tasks by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.taskDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "task_duration_seconds",
		Help:        "Task duration from submission to terminal callback",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.bytesReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "bytes_received_total",
		Help:        "Total response body bytes received",
		ConstLabels: m.constLabels,
	})

	m.inFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "tasks_in_flight",
		Help:        "Number of registered tasks that have not finished",
		ConstLabels: m.constLabels,
	})

	m.responses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "responses_total",
		Help:        "Total responses by status class",
		ConstLabels: m.constLabels,
	}, []string{"class"})
}

// TaskSubmitted marks a task as registered.
func (m *Manager) TaskSubmitted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// TaskStarted marks a task as having left the pending state.
func (m *Manager) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksStarted.Inc()
}

// TaskFinished records the outcome and duration of a task.
func (m *Manager) TaskFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.tasksFinished.WithLabelValues(outcome).Inc()
	m.taskDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ResponseReceived records a response status and body size.
func (m *Manager) ResponseReceived(status int, bytes int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(StatusClass(status)).Inc()
	m.bytesReceived.Add(float64(bytes))
}

// StatusClass returns "2xx", "4xx" and so on.
func StatusClass(status int) string {
	switch {
	case status < 100:
		return "other"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	case status < 600:
		return "5xx"
	default:
		return "other"
	}
}

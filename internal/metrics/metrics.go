// Package metrics registers and exposes the Prometheus metrics for agentd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agentd/internal/eventbus"
)

// Metrics holds all Prometheus metrics for agentd.
type Metrics struct {
	// Agent metrics
	AgentsTotal prometheus.Gauge

	// Task metrics
	TasksSubmitted *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	TaskDuration   prometheus.Histogram

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration
// happens once per process; subsequent calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			AgentsTotal: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentd_agents_total",
					Help: "Number of registered agents",
				},
			),
			TasksSubmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentd_tasks_submitted_total",
					Help: "Total number of tasks submitted",
				},
				[]string{"provider"},
			),
			TasksFinished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentd_tasks_finished_total",
					Help: "Total number of tasks reaching a terminal state",
				},
				[]string{"provider", "outcome"}, // outcome: completed, failed, cancelled
			),
			TaskDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentd_task_duration_seconds",
					Help:    "Task execution duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
				},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentd_events_published_total",
					Help: "Total number of events published on the internal bus",
				},
				[]string{"event_type"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentd_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentd_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// Observe subscribes to the event bus and keeps task counters current.
// It runs until the bus closes the subscriber channel or done is closed.
func (m *Metrics) Observe(bus *eventbus.Bus, providerType func() string, done <-chan struct{}) {
	sub := bus.Subscribe("metrics-observer", nil)
	defer bus.Unsubscribe(sub.ID)

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			m.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
			provider := providerType()

			switch ev.Type {
			case eventbus.EventTaskSubmitted:
				m.TasksSubmitted.WithLabelValues(provider).Inc()
			case eventbus.EventTaskCompleted:
				m.TasksFinished.WithLabelValues(provider, "completed").Inc()
				m.observeDuration(ev)
			case eventbus.EventTaskFailed:
				m.TasksFinished.WithLabelValues(provider, "failed").Inc()
				m.observeDuration(ev)
			case eventbus.EventTaskCancelled:
				m.TasksFinished.WithLabelValues(provider, "cancelled").Inc()
			}
		}
	}
}

func (m *Metrics) observeDuration(ev *eventbus.Event) {
	if ev.Data == nil {
		return
	}
	if secs, ok := ev.Data["duration_seconds"].(float64); ok && secs >= 0 {
		m.TaskDuration.Observe(secs)
	}
}

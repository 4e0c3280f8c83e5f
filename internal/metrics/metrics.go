// Package metrics holds the Prometheus collectors for the tracker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/taskgraph/internal/models"
)

// Metrics groups the tracker collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	transitions *prometheus.CounterVec
	replans     prometheus.Counter
	tasks       *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgraph_status_transitions_total",
			Help: "Applied task status transitions by source and target status",
		}, []string{"from", "to"}),
		replans: f.NewCounter(prometheus.CounterOpts{
			Name: "taskgraph_replans_total",
			Help: "Committed graph replacements",
		}),
		tasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskgraph_tasks",
			Help: "Functions per task status",
		}, []string{"status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskgraph_operation_duration_seconds",
			Help:    "Tracker operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Transition counts one status change.
func (m *Metrics) Transition(from, to models.Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Replan counts one graph replacement.
func (m *Metrics) Replan() {
	if m == nil {
		return
	}
	m.replans.Inc()
}

// SetTasks publishes the current per-status counts.
func (m *Metrics) SetTasks(counts map[models.Status]int) {
	if m == nil {
		return
	}
	for _, st := range models.AllStatuses {
		m.tasks.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

// Observe returns a func that records the elapsed time of op when called.
//
//	defer m.Observe("order")()
func (m *Metrics) Observe(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Package metrics holds the prometheus collectors of the appliance.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "upsbox"

// Metrics bundles the collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	statusMessages *prometheus.CounterVec
	networkChanges *prometheus.CounterVec
	queueFailures  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		statusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_messages_total",
			Help:      "Raw status messages drained by the ingest worker.",
		}, []string{"result"}),
		networkChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_changes_total",
			Help:      "Network reconfiguration attempts by outcome.",
		}, []string{"result"}),
		queueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_send_failures_total",
			Help:      "Failed best-effort channel sends.",
		}, []string{"queue"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.statusMessages,
		m.networkChanges,
		m.queueFailures,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StatusMessage(result string) {
	if m == nil {
		return
	}
	m.statusMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) NetworkChange(result string) {
	if m == nil {
		return
	}
	m.networkChanges.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueFailure(queue string) {
	if m == nil {
		return
	}
	m.queueFailures.WithLabelValues(queue).Inc()
}

func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

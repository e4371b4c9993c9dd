// Package metrics holds the Prometheus collectors for dispatch and cleanup.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bulkpush"

// Metrics stores the collectors used by the engine and its cleanup worker.
// All methods are safe on a nil receiver so tests can omit metrics.
type Metrics struct {
	registry *prometheus.Registry

	dispatchesTotal      *prometheus.CounterVec
	deliveriesTotal      *prometheus.CounterVec
	deliveryFailures     *prometheus.CounterVec
	gatewayCallDuration  *prometheus.HistogramVec
	auditFailuresTotal   prometheus.Counter
	cleanupTokensCleared prometheus.Counter
	cleanupFailuresTotal prometheus.Counter
	cleanupDroppedTotal  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of dispatch requests by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of messages accepted by the gateway.",
			},
			[]string{"mode"},
		),
		deliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_failures_total",
				Help:      "Total number of per-token delivery failures by error code.",
			},
			[]string{"code"},
		),
		gatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Gateway call duration in seconds by mode.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"mode"},
		),
		auditFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Total number of audit entries that could not be written.",
		}),
		cleanupTokensCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_tokens_cleared_total",
			Help:      "Total number of user records whose invalid token was cleared.",
		}),
		cleanupFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Total number of failed token cleanup operations.",
		}),
		cleanupDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_dropped_total",
			Help:      "Total number of cleanup tasks dropped because the queue was full.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatchesTotal,
		m.deliveriesTotal,
		m.deliveryFailures,
		m.gatewayCallDuration,
		m.auditFailuresTotal,
		m.cleanupTokensCleared,
		m.cleanupFailuresTotal,
		m.cleanupDroppedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncDispatch(mode string, outcome string) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(normalize(mode), normalize(outcome)).Inc()
}

func (m *Metrics) AddDeliveries(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveriesTotal.WithLabelValues(normalize(mode)).Add(float64(n))
}

func (m *Metrics) AddDeliveryFailures(code string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveryFailures.WithLabelValues(normalize(code)).Add(float64(n))
}

func (m *Metrics) ObserveGatewayCall(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.gatewayCallDuration.WithLabelValues(normalize(mode)).Observe(seconds)
}

func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailuresTotal.Inc()
}

func (m *Metrics) AddTokensCleared(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupTokensCleared.Add(float64(n))
}

func (m *Metrics) IncCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailuresTotal.Inc()
}

func (m *Metrics) IncCleanupDropped() {
	if m == nil {
		return
	}
	m.cleanupDroppedTotal.Inc()
}

func normalize(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

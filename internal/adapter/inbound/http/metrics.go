package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sidecar's Prometheus instruments. Wiring it is
// optional (disabled when --metrics-addr is empty) — every method is
// nil-receiver safe, so a nil *Metrics behaves as a no-op recorder.
type Metrics struct {
	requestsTotal         *prometheus.CounterVec
	policyDecisionsTotal  *prometheus.CounterVec
	upstreamDurationHisto *prometheus.HistogramVec
}

// NewMetrics registers the sidecar's instruments against a fresh registry.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_firewall_requests_total",
			Help: "Total requests handled by the firewall sidecar, by outcome.",
		}, []string{"outcome"}),
		policyDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_firewall_policy_decisions_total",
			Help: "Total policy evaluations, by decision reason.",
		}, []string{"reason"}),
		upstreamDurationHisto: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_firewall_upstream_duration_seconds",
			Help:    "Latency of upstream forward calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}, reg
}

// ObserveOutcome records a terminal HTTP outcome (e.g. "forwarded",
// "rate_limited", "blocked_by_policy", "upstream_unreachable").
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// ObservePolicyReason records the specific reason a policy decision
// carried, independent of the coarser HTTP outcome.
func (m *Metrics) ObservePolicyReason(reason string) {
	if m == nil {
		return
	}
	m.policyDecisionsTotal.WithLabelValues(reason).Inc()
}

// ObserveUpstreamDuration records how long an upstream forward call took.
func (m *Metrics) ObserveUpstreamDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDurationHisto.WithLabelValues(outcome).Observe(d.Seconds())
}

// MetricsHandler exposes reg's instruments in the Prometheus exposition
// format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "vpcmesh"

// Metrics holds the Prometheus collectors of one run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	unitApplyTotal      *prometheus.CounterVec
	unitApplyDuration   *prometheus.HistogramVec
	resourcesCreated    *prometheus.CounterVec
	providerCallsTotal  *prometheus.CounterVec
	providerCallLatency *prometheus.HistogramVec
	rateLimitDelay      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		unitApplyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "unit_apply_total",
				Help:      "Total number of deployment unit applies by result",
			},
			[]string{"unit", "result"},
		),
		unitApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "unit_apply_duration_seconds",
				Help:      "Duration of deployment unit applies in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"unit"},
		),
		resourcesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "resources_created_total",
				Help:      "Total number of cloud resources created by type",
			},
			[]string{"type"},
		),
		providerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_api_calls_total",
				Help:      "Total number of cloud provider API calls by call and status",
			},
			[]string{"provider", "call", "status"},
		),
		providerCallLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_api_call_duration_seconds",
				Help:      "Latency of cloud provider API calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"provider", "call"},
		),
		rateLimitDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_api_rate_limit_seconds",
				Help:      "Time provider API calls waited on the client-side rate limiter",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"provider", "call"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.unitApplyTotal,
			m.unitApplyDuration,
			m.resourcesCreated,
			m.providerCallsTotal,
			m.providerCallLatency,
			m.rateLimitDelay,
		)
	}
	return m
}

// RecordUnitApply records one unit apply with its result ("applied",
// "failed", "skipped").
func (m *Metrics) RecordUnitApply(unit, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.unitApplyTotal.WithLabelValues(unit, result).Inc()
	m.unitApplyDuration.WithLabelValues(unit).Observe(duration.Seconds())
}

// RecordResourceCreated counts a created resource.
func (m *Metrics) RecordResourceCreated(resourceType string) {
	if m == nil {
		return
	}
	m.resourcesCreated.WithLabelValues(resourceType).Inc()
}

// ObserveProviderCall records one provider API call.
func (m *Metrics) ObserveProviderCall(provider, call, status string, seconds float64) {
	if m == nil {
		return
	}
	m.providerCallsTotal.WithLabelValues(provider, call, status).Inc()
	m.providerCallLatency.WithLabelValues(provider, call).Observe(seconds)
}

// ForProvider binds the metrics to one provider name. The result satisfies
// the API metrics interfaces of the provider packages.
func (m *Metrics) ForProvider(provider string) *ProviderMetrics {
	return &ProviderMetrics{metrics: m, provider: provider}
}

// ProviderMetrics records API calls of one provider.
type ProviderMetrics struct {
	metrics  *Metrics
	provider string
}

// ObserveAPICall records one API call.
func (p *ProviderMetrics) ObserveAPICall(call, status string, seconds float64) {
	p.metrics.ObserveProviderCall(p.provider, call, status, seconds)
}

// ObserveRateLimit records how long a call waited for the rate limiter.
func (p *ProviderMetrics) ObserveRateLimit(call string, delay time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.rateLimitDelay.WithLabelValues(p.provider, call).Observe(delay.Seconds())
}

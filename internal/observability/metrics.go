package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Authorization outcomes recorded by RecordAuthContext.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeGuest         = "guest"
	OutcomeRejected      = "rejected"
)

// Metrics collects application metrics.
type Metrics interface {
	// RecordTokenVerification counts a verification; result is "valid" or a rejection reason.
	RecordTokenVerification(result string)
	// RecordKeySetRefresh counts a signing key fetch; result is "success", "store" or "error".
	RecordKeySetRefresh(result string, duration time.Duration)
	// RecordAuthContext counts an authorization context outcome.
	RecordAuthContext(outcome string)
	// RecordProviderCall counts a call to the external identity provider.
	RecordProviderCall(provider, operation, result string, duration time.Duration)
	// RecordRequest counts an HTTP request.
	RecordRequest(method, route string, status int, duration time.Duration)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordTokenVerification(string)                           {}
func (NoopMetrics) RecordKeySetRefresh(string, time.Duration)                {}
func (NoopMetrics) RecordAuthContext(string)                                 {}
func (NoopMetrics) RecordProviderCall(string, string, string, time.Duration) {}
func (NoopMetrics) RecordRequest(string, string, int, time.Duration)         {}

// PrometheusMetrics implements Metrics with Prometheus collectors.
type PrometheusMetrics struct {
	tokenVerifications *prometheus.CounterVec
	keySetRefreshes    *prometheus.CounterVec
	keySetDuration     prometheus.Histogram
	authContexts       *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		tokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_token_verifications_total",
				Help: "Bearer token verifications by result",
			},
			[]string{"result"},
		),
		keySetRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_keyset_refreshes_total",
				Help: "Signing key set fetches by result",
			},
			[]string{"result"},
		),
		keySetDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "identity_keyset_refresh_duration_seconds",
				Help:    "Signing key set fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		authContexts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_auth_contexts_total",
				Help: "Authorization contexts built by outcome",
			},
			[]string{"outcome"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_provider_calls_total",
				Help: "Identity provider calls by operation and result",
			},
			[]string{"provider", "operation", "result"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_provider_call_duration_seconds",
				Help:    "Identity provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.tokenVerifications,
		m.keySetRefreshes,
		m.keySetDuration,
		m.authContexts,
		m.providerCalls,
		m.providerDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *PrometheusMetrics) RecordTokenVerification(result string) {
	m.tokenVerifications.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) RecordKeySetRefresh(result string, duration time.Duration) {
	m.keySetRefreshes.WithLabelValues(result).Inc()
	m.keySetDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordAuthContext(outcome string) {
	m.authContexts.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordProviderCall(provider, operation, result string, duration time.Duration) {
	m.providerCalls.WithLabelValues(provider, operation, result).Inc()
	m.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

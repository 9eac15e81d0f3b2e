// Package telemetry provides observability primitives for the client
// runtime: Prometheus metrics and OTel tracing, wired the same way the
// host process's HTTP and gRPC surfaces are.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the client runtime publishes.
type Metrics struct {
	ReconfigureTotal       prometheus.Counter
	ReconfigureFailures    prometheus.Counter
	PropertyMappingRefresh prometheus.Counter
	AccessControlTotal     *prometheus.CounterVec // labels: outcome
	AccessControlDuration  prometheus.Histogram
	AccessTokenCacheHits   prometheus.Counter
	AccessTokenCacheMisses prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec   // labels: name
	CircuitBreakerRejects  *prometheus.CounterVec // labels: name
}

// NewMetrics creates and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconfigureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "reconfigure_total",
			Help:      "Total number of successful connection reconfigurations.",
		}),

		ReconfigureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "reconfigure_failures_total",
			Help:      "Total number of failed reconfigure attempts, before a retry.",
		}),

		PropertyMappingRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "property_mapping_refresh_total",
			Help:      "Total number of property mapping refreshes.",
		}),

		AccessControlTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "access_control_total",
			Help:      "Total access control evaluations, by outcome.",
		}, []string{"outcome"}),

		AccessControlDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "authly_client",
			Name:                            "access_control_duration_seconds",
			Help:                            "Access control RPC round-trip duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		AccessTokenCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "access_token_cache_hits_total",
			Help:      "Total access token decode cache hits.",
		}),

		AccessTokenCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "access_token_cache_misses_total",
			Help:      "Total access token decode cache misses.",
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "authly_client",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per dependency (0=closed, 1=open, 2=half_open).",
		}, []string{"name"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authly_client",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by the circuit breaker, per dependency.",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.ReconfigureTotal,
		m.ReconfigureFailures,
		m.PropertyMappingRefresh,
		m.AccessControlTotal,
		m.AccessControlDuration,
		m.AccessTokenCacheHits,
		m.AccessTokenCacheMisses,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
	)

	return m
}

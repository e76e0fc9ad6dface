package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "fngate"

var (
	JWKSFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetch_total",
			Help:      "Total number of key set fetches, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	JWKSFetchLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "jwks_fetch_latency_seconds",
			Help:      "Latency of key set fetches from the issuer (seconds).",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	KeyLookupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_lookup_total",
			Help:      "Total number of signing key lookups, labeled by cache result.",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests, labeled by route, method and status code.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency including authentication (seconds).",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		JWKSFetchTotal,
		JWKSFetchLatencySeconds,
		KeyLookupTotal,
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		RateLimitHitsTotal,
	)
}

// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring warden.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthBuckets covers plugin pipelines from sub-millisecond API key checks
// up to JWKS fetches and bcrypt comparisons.
var AuthBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Auth outcomes used as the outcome label.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeChallenge = "challenge"
	OutcomeNoResult  = "no_result"
	OutcomeError     = "error"
)

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// InFlightRequests tracks requests currently being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_requests_in_flight",
			Help: "Requests in flight",
		},
	)

	// AuthAttemptsTotal counts authentication pipeline runs by outcome.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_attempts_total",
			Help: "Authentication attempts",
		},
		[]string{"outcome"},
	)

	// AuthDuration records how long the authentication pipeline took.
	AuthDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_auth_duration_seconds",
			Help:    "Authentication pipeline duration",
			Buckets: AuthBuckets,
		},
	)

	// CredentialResetsTotal counts credential resets by status (ok/error).
	CredentialResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_credential_resets_total",
			Help: "Credential resets",
		},
		[]string{"status"},
	)

	// ThrottleRejectedTotal counts requests rejected by the throttle.
	ThrottleRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_throttle_rejected_total",
			Help: "Throttle rejections",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		AuthAttemptsTotal,
		AuthDuration,
		CredentialResetsTotal,
		ThrottleRejectedTotal,
	)
}

// ObserveAuth records one authentication attempt.
func ObserveAuth(outcome string, elapsed time.Duration) {
	AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	AuthDuration.Observe(elapsed.Seconds())
}

// ObserveReset records one credential reset.
func ObserveReset(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CredentialResetsTotal.WithLabelValues(status).Inc()
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the onboarding pipeline
var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_submissions_total",
			Help: "Form submissions by outcome (accepted, malformed, missing_email, duplicate, provider_error, notification_error)",
		},
		[]string{"outcome"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_provider_requests_total",
			Help: "Verification link requests to the KYC provider by response status",
		},
		[]string{"status"},
	)

	ProviderRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kyc_provider_request_duration_seconds",
			Help:    "Duration of verification link requests to the KYC provider",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_notifications_total",
			Help: "Verification emails by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	ProviderEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_provider_events_total",
			Help: "Review-status callbacks received from the KYC provider",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry. It is
// safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HttpRequestsTotal)
		prometheus.MustRegister(HttpRequestDuration)
		prometheus.MustRegister(SubmissionsTotal)
		prometheus.MustRegister(ProviderRequestsTotal)
		prometheus.MustRegister(ProviderRequestDuration)
		prometheus.MustRegister(NotificationsTotal)
		prometheus.MustRegister(ProviderEventsTotal)
	})
}

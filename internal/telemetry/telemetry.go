// Package telemetry holds the Prometheus collectors shared across the service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keys_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_booking_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_payment_webhook_events_total",
		Help: "Payment webhook events by type and result.",
	}, []string{"type", "result"})

	Emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_emails_total",
		Help: "Outbound emails by template and result.",
	}, []string{"template", "result"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_dependency_fallbacks_total",
		Help: "Placeholder values used because a dependency failed.",
	}, []string{"dependency"})

	MetricsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_metrics_imported_total",
		Help: "Metric rows imported from CSV uploads.",
	})
)

// Result maps an error to a "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

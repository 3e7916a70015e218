// AngelaMos | 2026
// metrics.go

package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	FeatureUsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegate_feature_uses_total",
			Help: "Image feature attempts by outcome",
		},
		[]string{"outcome"},
	)

	CheckoutTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegate_checkout_transitions_total",
			Help: "Checkout attempt state transitions",
		},
		[]string{"to"},
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegate_auth_attempts_total",
			Help: "Signup and login attempts by result",
		},
		[]string{"kind", "result"},
	)
)

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"role"}, // "trainer" or "regular_user"
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_send_failures_total",
			Help: "Total failed sends by error kind",
		},
		[]string{"kind"},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_subscriptions",
			Help: "Open conversation subscriptions",
		},
	)

	RoleLookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_role_lookup_failures_total",
			Help: "Trainer directory lookups that failed and were treated as not found",
		},
		[]string{"directory"},
	)

	ProfileLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_profile_lookup_failures_total",
			Help: "Counterpart profile lookups that fell back to the raw id",
		},
	)
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	OpenSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_open_websockets",
			Help: "Open websocket connections",
		},
	)
)

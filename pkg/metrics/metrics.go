package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riverchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Chat metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverchat_messages_sent_total",
			Help: "Total messages persisted",
		},
		[]string{"message_type"},
	)

	ReactionsToggled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riverchat_reactions_toggled_total",
			Help: "Total reaction toggles",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riverchat_rate_limit_hits_total",
			Help: "Total sends rejected by the rate limiter",
		},
	)

	// Hub metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riverchat_ws_connections",
			Help: "Open websocket connections",
		},
	)

	HubSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riverchat_hub_subscriptions",
			Help: "Live channel subscriptions",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riverchat_hub_events_delivered_total",
			Help: "Events queued for delivery, per subscriber",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riverchat_hub_events_dropped_total",
			Help: "Events dropped because a subscriber queue was full",
		},
	)
)

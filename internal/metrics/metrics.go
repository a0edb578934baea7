package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisper_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	WhispersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whisper_created_total",
			Help: "Total whispers created",
		},
	)

	Reveals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_reveals_total",
			Help: "Reveal attempts by outcome",
		},
		[]string{"outcome"}, // "not_found", "forbidden", "undeliverable", "revealed"
	)

	UsageShown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whisper_usage_shown_total",
			Help: "Inline queries answered with the usage card",
		},
	)

	ObserverNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_observer_notifications_total",
			Help: "Observer copies by result",
		},
		[]string{"result"}, // "delivered" or "failed"
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisper_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)
)

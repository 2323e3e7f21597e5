package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_rooms",
		Help: "Number of rooms currently held by the registry",
	})

	ActiveMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_members",
		Help: "Number of members across all rooms",
	})

	ActiveTransports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_transports",
		Help: "Number of registered WebRTC transports",
	})

	ActiveProducers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "huddle_active_producers",
		Help: "Number of registered producers",
	}, []string{"kind"}) // "audio" | "video" | "screen"

	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_consumers",
		Help: "Number of registered consumers",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_signaling_connections",
		Help: "Number of open signaling websocket connections",
	})

	SignalingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_signaling_requests_total",
		Help: "Total signaling requests by method and result",
	}, []string{"method", "result"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_notifications_total",
		Help: "Total server to client notifications enqueued",
	}, []string{"method"})

	MediaServerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "huddle_mediaserver_request_seconds",
		Help:    "Latency of media server requests",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"operation"})

	MediaServerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_mediaserver_errors_total",
		Help: "Media server request failures",
	}, []string{"operation", "reason"}) // reason: "timeout" | "status" | "rpc" | "transport"

	CleanupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_cleanup_failures_total",
		Help: "Swallowed failures during cascading cleanup",
	}, []string{"operation"})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_config_reloads_total",
		Help: "Number of configuration reloads",
	})
)

// ProducerLabel returns the ActiveProducers label for a producer.
func ProducerLabel(kind string, screen bool) string {
	if screen {
		return "screen"
	}
	return kind
}

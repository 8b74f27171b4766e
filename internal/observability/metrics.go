package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests processed by the gateway.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	webhookPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhook_payloads_total",
			Help: "Total number of inbound webhook payloads by tenant.",
		},
		[]string{"tenant"},
	)
	messagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_ingested_total",
			Help: "Total number of messages persisted, by tenant, type and outcome.",
		},
		[]string{"tenant", "type", "outcome"},
	)
	statusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_status_updates_total",
			Help: "Total number of delivery status updates by outcome.",
		},
		[]string{"outcome"},
	)
	mediaEnrichmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_media_enrichments_total",
			Help: "Total number of media enrichment attempts by outcome.",
		},
		[]string{"outcome"},
	)
	wsActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_ws_active_sessions",
			Help: "Number of active realtime sessions.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ws_events_total",
			Help: "Total number of realtime events by name.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		webhookPayloadsTotal,
		messagesIngestedTotal,
		statusUpdatesTotal,
		mediaEnrichmentsTotal,
		wsActiveSessions,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWebhookPayload(tenant string) {
	webhookPayloadsTotal.WithLabelValues(tenant).Inc()
}

func IncMessageIngested(tenant, msgType, outcome string) {
	messagesIngestedTotal.WithLabelValues(tenant, msgType, outcome).Inc()
}

func IncStatusUpdate(outcome string) {
	statusUpdatesTotal.WithLabelValues(outcome).Inc()
}

func IncMediaEnrichment(outcome string) {
	mediaEnrichmentsTotal.WithLabelValues(outcome).Inc()
}

func IncWSActive() {
	wsActiveSessions.Inc()
}

func DecWSActive() {
	wsActiveSessions.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

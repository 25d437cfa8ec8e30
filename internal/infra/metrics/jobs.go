package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal, workerQueueDepth) }

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events by type and processing result.",
		},
		[]string{"type", "result"}, // result: ok, rejected, error, invalid, ignored, timeout
	)

	workerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Tasks waiting in a worker pool queue.",
		},
		[]string{"pool"},
	)
)

func IncWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

func SetWorkerQueueDepth(pool string, depth int) {
	workerQueueDepth.WithLabelValues(norm(pool)).Set(float64(depth))
}

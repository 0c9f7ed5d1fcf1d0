package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayCallDuration,
		webhookEventsTotal,
	)
}

var (
	// op: create|fetch|webhook ; result: ok|transient|permanent
	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Latency of payment gateway calls by gateway, operation and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"gateway", "op", "result"},
	)

	// outcome: applied|noop|orphan|ignored|bad_signature|bad_payload|error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound gateway webhooks by gateway and outcome.",
		},
		[]string{"gateway", "outcome"},
	)
)

func ObserveGatewayCall(gateway, op, result string, d time.Duration) {
	gatewayCallDuration.WithLabelValues(norm(gateway), norm(op), norm(result)).Observe(d.Seconds())
}

func IncWebhook(gateway, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(gateway), norm(outcome)).Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activationsTotal,
		telegramUpdatesTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	// result: ok|already_used|expired|not_found|suspended|error
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_activations_total",
			Help: "Activation code redemptions by result.",
		},
		[]string{"result"},
	)

	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_received_total",
			Help: "Inbound Telegram updates by kind.",
		},
		[]string{"kind"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Requests rejected by a rate limiter, by scope.",
		},
		[]string{"scope"},
	)
)

func IncActivation(result string) {
	activationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncTelegramUpdate(kind string) {
	telegramUpdatesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncRateLimitTriggered(scope string) {
	rateLimitTriggeredTotal.WithLabelValues(norm(scope)).Inc()
}

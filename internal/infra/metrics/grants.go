package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		salesTotal,
		invitesTotal,
		accessRevocationsTotal,
	)
}

var (
	salesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_total",
			Help: "Total number of sales recorded by the access grantor.",
		},
	)

	// result: sent|failed|queued|skipped
	invitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invites_total",
			Help: "Single-use invite deliveries by result.",
		},
		[]string{"result"},
	)

	accessRevocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_revocations_total",
			Help: "Expired access windows enforced, by result.",
		},
		[]string{"result"},
	)
)

func IncSale() { salesTotal.Inc() }

func IncInvite(result string) {
	invitesTotal.WithLabelValues(norm(result)).Inc()
}

func IncAccessRevocation(result string) {
	accessRevocationsTotal.WithLabelValues(norm(result)).Inc()
}

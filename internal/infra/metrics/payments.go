package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		ledgerTransitionsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments entering each status (pending/completed/failed/refunded).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Monetary value of completed payments, labeled by gateway.",
		},
		[]string{"gateway"},
	)

	// result: applied|replay|invalid|race
	ledgerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transitions_total",
			Help: "Ledger status transition attempts by outcome.",
		},
		[]string{"result"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(gateway string, amount decimal.Decimal) {
	paymentsRevenueTotal.WithLabelValues(norm(gateway)).Add(amount.InexactFloat64())
}

func IncLedgerTransition(result string) {
	ledgerTransitionsTotal.WithLabelValues(norm(result)).Inc()
}

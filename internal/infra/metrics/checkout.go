package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		checkoutSessionsTotal,
		purchaseTransitionsTotal,
		purchaseRevenueTotal,
		sessionsExpiredTotal,
	)
}

var (
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout sessions by lifecycle event (created/attached/completed/expired).",
		},
		[]string{"event"},
	)

	purchaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_transitions_total",
			Help: "Purchase status changes by resulting status and outcome.",
		},
		[]string{"status", "result"}, // result: 'ok', 'rejected', 'error'
	)

	purchaseRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_revenue_total",
			Help: "Sum of completed purchase prices by currency.",
		},
		[]string{"currency"},
	)

	sessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_expired_by_worker_total",
			Help: "Sessions expired by the background expiry worker.",
		},
	)
)

func IncCheckoutSession(event string) {
	checkoutSessionsTotal.WithLabelValues(norm(event)).Inc()
}

func IncPurchaseTransition(status, result string) {
	purchaseTransitionsTotal.WithLabelValues(norm(status), norm(result)).Inc()
}

func AddPurchaseRevenue(currency string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	purchaseRevenueTotal.WithLabelValues(norm(currency)).Add(f)
}

func AddSessionsExpired(count int) {
	sessionsExpiredTotal.Add(float64(count))
}

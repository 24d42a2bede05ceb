package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PurchasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_purchases_total",
			Help: "Number of completed purchases",
		},
	)

	PurchaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_purchase_failures_total",
			Help: "Number of failed purchases by reason",
		},
		[]string{"reason"},
	)

	PurchaseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "market_purchase_duration_seconds",
			Help: "Time taken by the purchase transaction",
		},
	)
)

func Register() {
	prometheus.MustRegister(PurchasesTotal, PurchaseFailures, PurchaseDuration)
}

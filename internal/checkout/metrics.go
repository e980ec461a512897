package checkout

import "github.com/prometheus/client_golang/prometheus"

var (
	paymentsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "payments_started_total",
		Help:      "Hosted checkout sessions created.",
	})
	paymentsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "payments_completed_total",
		Help:      "Orders transitioned to paid.",
	})
	paymentsCanceled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "payments_canceled_total",
		Help:      "Gateway sessions canceled by the customer.",
	})
	gatewayErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "gateway_errors_total",
		Help:      "Failed payment gateway calls.",
	})
)

func init() {
	prometheus.MustRegister(paymentsStarted, paymentsCompleted, paymentsCanceled, gatewayErrors)
}

// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_transactions_created_total",
		Help: "Transactions created, by payment method and initial status.",
	}, []string{"method", "status"})

	SettlementsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_settlements_confirmed_total",
		Help: "Pending transactions settled, by confirmation source.",
	}, []string{"source"})

	GatewayCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_gateway_callbacks_total",
		Help: "Payment gateway callbacks received, by handling result.",
	}, []string{"result"})

	Reversals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_reversals_total",
		Help: "Completed transactions reversed, by kind (cancel or refund).",
	}, []string{"kind"})

	ShiftsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_shifts_closed_total",
		Help: "Cashier shifts closed.",
	})

	ShiftCashDifference = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_shift_cash_difference_rupiah",
		Help:    "Absolute cash difference recorded at shift close.",
		Buckets: prometheus.ExponentialBuckets(1000, 5, 6),
	})

	NotificationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_notification_retries_total",
		Help: "Receipt notification delivery retries.",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_notification_failures_total",
		Help: "Receipt notifications abandoned after retries.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

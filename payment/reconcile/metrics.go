package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenpay_orders_paid_total",
		Help: "Orders settled by a matching ledger transfer",
	})

	addressFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenpay_reconcile_address_failures_total",
		Help: "Per-address reconciliation failures (ledger or store errors)",
	})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenpay_notify_failures_total",
		Help: "Merchant notifications that failed",
	})

	pendingAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenpay_pending_addresses",
		Help: "Addresses with pending orders in the last cycle",
	})
)

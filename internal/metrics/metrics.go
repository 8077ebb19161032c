// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scanorder"

var (
	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Count of persisted order status transitions.",
		},
		[]string{"from", "to", "actor"},
	)
	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of orders created, by channel and payment method.",
		},
		[]string{"channel", "payment_method"},
	)
	paymentWebhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Count of payment webhook deliveries, by event type and outcome.",
		},
		[]string{"type", "result"},
	)
	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Count of payment reconciliation polls, by outcome.",
		},
		[]string{"outcome"},
	)
	realtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Number of live change bus subscriptions.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(orderTransitions)
		reg.MustRegister(ordersCreated)
		reg.MustRegister(paymentWebhooks)
		reg.MustRegister(reconciliations)
		reg.MustRegister(realtimeSubscribers)
	})
}

func RecordTransition(from, to, actor string) {
	orderTransitions.WithLabelValues(from, to, actor).Inc()
}

func RecordOrderCreated(channel, paymentMethod string) {
	ordersCreated.WithLabelValues(channel, paymentMethod).Inc()
}

func RecordWebhook(eventType, result string) {
	paymentWebhooks.WithLabelValues(eventType, result).Inc()
}

func RecordReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

func SubscriberAdded() {
	realtimeSubscribers.Inc()
}

func SubscriberRemoved() {
	realtimeSubscribers.Dec()
}

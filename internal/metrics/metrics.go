package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts webhook invocations by endpoint and outcome.
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook invocations by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: "success", "exception"
	)

	// CarrierFailures counts per-carrier strategy failures in the rate
	// aggregator. Failures are isolated, so this is the only trace.
	CarrierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carrier_strategy_failures_total",
			Help: "Shipping rate strategy failures by carrier",
		},
		[]string{"carrier"},
	)

	// ExportResults counts ERP export outcomes.
	ExportResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erp_export_results_total",
			Help: "Order export dispatch outcomes",
		},
		[]string{"outcome"}, // "accepted", "rejected", "failed"
	)

	// ReconcilerTransitions counts order status transitions applied by the
	// reconciler, labelled by the target commerce status.
	ReconcilerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_transitions_total",
			Help: "Order status transitions applied during reconciliation",
		},
		[]string{"status"},
	)

	// EventMessages counts consumed order-saved events by outcome.
	EventMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_events_processed_total",
			Help: "Order-saved event messages by outcome",
		},
		[]string{"outcome"}, // "success", "dlq_decode", "dlq_dispatch"
	)

	// RateCacheHits counts UPS rate cache hits.
	RateCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_cache_hits_total",
			Help: "Shipping rate cache hits",
		},
	)

	// RateCacheMisses counts UPS rate cache misses.
	RateCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_cache_misses_total",
			Help: "Shipping rate cache misses",
		},
	)
)

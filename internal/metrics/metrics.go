// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InferenceDuration observes end-to-end cascade inference latency.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "urbanrisk",
		Name:      "inference_duration_seconds",
		Help:      "End-to-end cascading inference latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// InferenceTotal counts inference runs by outcome.
	InferenceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "urbanrisk",
		Name:      "inference_total",
		Help:      "Inference runs by outcome.",
	}, []string{"outcome"})

	// RateGateRejections counts ingest inferences refused by the rate gate.
	RateGateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanrisk",
		Name:      "rate_gate_rejections_total",
		Help:      "Inference requests refused by the ingest rate gate.",
	})

	// StreamSubscribers gauges attached prediction-stream clients.
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "urbanrisk",
		Name:      "stream_subscribers",
		Help:      "Currently attached prediction stream subscribers.",
	})

	// StreamDeliveryFailures counts dropped subscriber writes.
	StreamDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanrisk",
		Name:      "stream_delivery_failures_total",
		Help:      "Subscriber writes that failed and detached the client.",
	})

	// WarehouseRequests counts baseline reads by serving tier.
	WarehouseRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "urbanrisk",
		Name:      "warehouse_requests_total",
		Help:      "Baseline reads by serving tier.",
	}, []string{"tier"})
)

// Warehouse serving tiers.
const (
	TierCache    = "cache"
	TierStore    = "store"
	TierEstimate = "estimate"
)

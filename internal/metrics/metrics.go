package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecognitionsTotal tracks finished recognitions by outcome (saved, unsaved, skipped, failed)
	RecognitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_scanner_recognitions_total",
			Help: "Total number of recognition requests by outcome",
		},
		[]string{"outcome"},
	)

	// ProviderCallsTotal tracks individual provider attempts, retries included
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_scanner_provider_calls_total",
			Help: "Total number of provider calls",
		},
		[]string{"provider", "result"},
	)

	// ProviderLatency tracks the duration of a recognition call including retries
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelf_scanner_provider_latency_seconds",
			Help:    "Provider call latency in seconds, retries included",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// ParseDegradedTotal counts responses that needed the fallback parse tier
	ParseDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_scanner_parse_degraded_total",
			Help: "Total number of provider responses parsed in degraded mode",
		},
		[]string{"shape"},
	)

	// StoreOperationsTotal tracks record store operations by result
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelf_scanner_store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"op", "result"},
	)
)

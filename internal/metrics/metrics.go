// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "currex"

var (
	// CacheLookups counts TTL cache lookups by cache name and result (hit, miss, expired).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Rate cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	// FetchDuration observes upstream request latency by endpoint and outcome.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time spent fetching rates from the provider",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	// ParseFallbacks counts rate strings that could not be parsed and were replaced by zero.
	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "fallbacks_total",
			Help:      "Unparseable rate values substituted with zero",
		},
		[]string{"bank", "field"},
	)

	// WidgetWrites counts widget snapshot writes by outcome.
	WidgetWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "widget",
			Name:      "writes_total",
			Help:      "Widget snapshot writes by outcome",
		},
		[]string{"outcome"},
	)

	// AlertsSent counts dispatched best-rate alerts by currency and side.
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "sent_total",
			Help:      "Best-rate movement alerts dispatched",
		},
		[]string{"currency", "side"},
	)
)

// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tindahan",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	SalesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "pos",
		Name:      "sales_total",
		Help:      "Sale attempts by outcome.",
	}, []string{"outcome"})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tindahan",
		Subsystem: "pos",
		Name:      "stock_adjustments_total",
		Help:      "Manual stock adjustments by movement type and outcome.",
	}, []string{"movement_type", "outcome"})
)

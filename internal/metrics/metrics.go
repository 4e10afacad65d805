package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefharvest_records_collected_total",
			Help: "Total number of preference records collected by method",
		},
		[]string{"method"}, // "comparison" or "ranking"
	)

	recordsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prefharvest_records_flushed_total",
			Help: "Total number of preference records flushed to storage",
		},
	)

	flushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prefharvest_flush_duration_seconds",
			Help:    "Duration of buffer flushes to storage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	loadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prefharvest_load_duration_seconds",
			Help:    "Duration of full storage loads",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	hubRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prefharvest_hub_request_duration_seconds",
			Help:    "Hub API request duration in seconds by status",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"status"},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// IncrementCollected records newly collected records by method
func (c *Collector) IncrementCollected(method string, count int) {
	recordsCollected.WithLabelValues(method).Add(float64(count))
}

// RecordFlush records a completed buffer flush
func (c *Collector) RecordFlush(count int, duration time.Duration) {
	recordsFlushed.Add(float64(count))
	flushDuration.Observe(duration.Seconds())
}

// RecordLoad records a full storage load
func (c *Collector) RecordLoad(duration time.Duration) {
	loadDuration.Observe(duration.Seconds())
}

// RecordHubRequest records a hub API request duration
func (c *Collector) RecordHubRequest(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	hubRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

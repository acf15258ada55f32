package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BucketsAggregated counts buckets committed by the aggregator
	BucketsAggregated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "aggregation_buckets_total",
			Help:      "Total number of metric buckets rolled up",
		},
		[]string{"kind", "granularity"},
	)

	// RecordsMerged counts source records consumed by the aggregator
	RecordsMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "aggregation_records_merged_total",
			Help:      "Total number of metric records merged into coarser buckets",
		},
		[]string{"kind", "granularity"},
	)

	// AggregationErrors counts buckets that failed to commit
	AggregationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "aggregation_errors_total",
			Help:      "Total number of buckets that failed to aggregate",
		},
		[]string{"kind", "granularity", "reason"},
	)

	// AlertTransitions counts alert state changes
	AlertTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "alert_transitions_total",
			Help:      "Total number of alert transitions by resulting status",
		},
		[]string{"status", "level"},
	)

	// HealthEvaluations counts health evaluations by resulting status
	HealthEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "health_evaluations_total",
			Help:      "Total number of health evaluations by entity type and status",
		},
		[]string{"entity", "status"},
	)

	// Pings counts liveness probes by outcome
	Pings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshmon",
			Name:      "pings_total",
			Help:      "Total number of node pings by outcome",
		},
		[]string{"outcome"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(BucketsAggregated)
		prometheus.DefaultRegisterer.Register(RecordsMerged)
		prometheus.DefaultRegisterer.Register(AggregationErrors)
		prometheus.DefaultRegisterer.Register(AlertTransitions)
		prometheus.DefaultRegisterer.Register(HealthEvaluations)
		prometheus.DefaultRegisterer.Register(Pings)
	})
}

// Package observability provides Prometheus instrumentation for the graph
// acquisition pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcome labels.
const (
	CacheOutcomeFresh = "fresh"
	CacheOutcomeStale = "stale"
	CacheOutcomeMiss  = "miss"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	RefreshesQueued    prometheus.Counter
	RefreshesCompleted prometheus.Counter
	RefreshFailures    prometheus.Counter

	RecordPages         prometheus.Counter
	RecordFetchFailures prometheus.Counter
	ProfileBatches      prometheus.Counter

	BuildDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the service collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Snapshot cache lookups by outcome (fresh, stale, miss).",
		}, []string{"outcome"}),
		RefreshesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "cache",
			Name:      "refreshes_queued_total",
			Help:      "Background snapshot refreshes enqueued.",
		}),
		RefreshesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "cache",
			Name:      "refreshes_completed_total",
			Help:      "Background snapshot refreshes completed successfully.",
		}),
		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "cache",
			Name:      "refresh_failures_total",
			Help:      "Background snapshot refreshes that failed.",
		}),
		RecordPages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "fetch",
			Name:      "record_pages_total",
			Help:      "Record listing pages retrieved from personal data servers.",
		}),
		RecordFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "fetch",
			Name:      "record_failures_total",
			Help:      "Record listings degraded to empty because of a failure.",
		}),
		ProfileBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intrograph",
			Subsystem: "fetch",
			Name:      "profile_batches_total",
			Help:      "Profile batch requests issued.",
		}),
		BuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intrograph",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Graph build duration by kind (full, expansion).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// NewNopMetrics creates collectors on a throwaway registry, for tests and
// components constructed without metrics wiring.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

package pools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for pool assembly and resolution.
// Encapsulating them in a struct keeps the handle and assembler types clean.
type Metrics struct {
	ChildResolutions  *prometheus.CounterVec
	AccessorErrors    *prometheus.CounterVec
	BatchDiscoveryDur *prometheus.HistogramVec
	NetworksFailed    *prometheus.CounterVec
	PoolsBuilt        prometheus.Counter
	PoolsSkipped      prometheus.Counter
}

// NewMetrics creates and registers the metrics. A nil Registerer yields
// unregistered (but still usable) collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChildResolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "poolstate",
			Name:      "child_resolutions_total",
			Help:      "Child contract resolutions, labeled by child kind and outcome (cached, fetched, error).",
		}, []string{"kind", "outcome"}),

		AccessorErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "poolstate",
			Name:      "accessor_errors_total",
			Help:      "Errors surfaced by pool handle accessors, labeled by error type.",
		}, []string{"type"}),

		BatchDiscoveryDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "poolstate",
			Name:      "batch_discovery_duration_seconds",
			Help:      "Duration of the per-network batched child discovery round trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain_id"}),

		NetworksFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: "poolstate",
			Name:      "networks_failed_total",
			Help:      "Per-network discovery batches that settled as failed and were excluded.",
		}, []string{"chain_id"}),

		PoolsBuilt: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: "poolstate",
			Name:      "pools_built_total",
			Help:      "Pool handles successfully constructed.",
		}),

		PoolsSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: "poolstate",
			Name:      "pools_skipped_total",
			Help:      "Deployments skipped during pool set building.",
		}),
	}
}

// Package observability provides Prometheus metrics for the pool node.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"mpesapool/internal/ledger"
)

// Metrics holds the executor's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Submission metrics
	SubmissionsApplied  *prometheus.CounterVec
	SubmissionsRejected *prometheus.CounterVec
	EventsEmitted       *prometheus.CounterVec
	BlocksApplied       prometheus.Counter
	LastAppliedHeight   prometheus.Gauge

	// Pool gauges in smallest units
	TotalBalance    prometheus.Gauge
	TotalShares     prometheus.Gauge
	ReservedBalance prometheus.Gauge
	OpenClaims      prometheus.Gauge

	// Persistence
	SnapshotDuration prometheus.Histogram
	SnapshotErrors   prometheus.Counter
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "poolnode"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SubmissionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "submissions_applied_total",
			Help:      "Total number of submissions committed by kind",
		}, []string{"kind"}),
		SubmissionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "submissions_rejected_total",
			Help:      "Total number of submissions rejected by kind and reason",
		}, []string{"kind", "reason"}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Total number of ledger events by kind",
		}, []string{"kind"}),
		BlocksApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "blocks_applied_total",
			Help:      "Total number of blocks applied",
		}),
		LastAppliedHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "last_applied_height",
			Help:      "Height of the last fully applied block",
		}),

		TotalBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_balance",
			Help:      "Pool total balance",
		}),
		TotalShares: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_shares",
			Help:      "Outstanding provider shares",
		}),
		ReservedBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserved_balance",
			Help:      "Balance reserved by open draw claims",
		}),
		OpenClaims: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "live_claims",
			Help:      "Claims in open or proven state",
		}),

		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "snapshot_duration_seconds",
			Help:      "Snapshot persistence latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "snapshot_errors_total",
			Help:      "Total number of failed snapshot writes",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePool updates the pool gauges.
func (m *Metrics) ObservePool(pool ledger.Pool, liveClaims int) {
	m.TotalBalance.Set(amountFloat(pool.TotalBalance))
	m.TotalShares.Set(amountFloat(pool.TotalShares))
	m.ReservedBalance.Set(amountFloat(pool.ReservedBalance))
	m.OpenClaims.Set(float64(liveClaims))
}

func amountFloat(a ledger.Amount) float64 {
	return decimal.NewFromBigInt(a.ToBig(), 0).InexactFloat64()
}

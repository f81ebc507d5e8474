package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campaign_gateway"

// Metrics holds the collectors of the authentication and isolation pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Rejections     *prometheus.CounterVec
	LeasesInFlight *prometheus.GaugeVec
	LeaseReleases  *prometheus.CounterVec
	LeaseFailures  *prometheus.CounterVec
	AuditWarnings  *prometheus.CounterVec
	DroppedTasks   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_rejections_total",
			Help:      "Requests rejected by the authentication pipeline, by API code.",
		}, []string{"code"}),
		LeasesInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_leases_in_flight",
			Help:      "Database connections currently leased to a request scope.",
		}, []string{"scope"}),
		LeaseReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_lease_releases_total",
			Help:      "Connection lease releases, by outcome (returned or discarded).",
		}, []string{"scope", "outcome"}),
		LeaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_lease_failures_total",
			Help:      "Failures to lease or scope a connection, by stage.",
		}, []string{"scope", "stage"}),
		AuditWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_audit_warnings_total",
			Help:      "Statements on tenant-owned tables without a recognised tenant filter.",
		}, []string{"table", "indirect"}),
		DroppedTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_dropped_total",
			Help:      "Fire-and-forget tasks dropped because the queue was full.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Rejections,
			m.LeasesInFlight,
			m.LeaseReleases,
			m.LeaseFailures,
			m.AuditWarnings,
			m.DroppedTasks,
		)
	}
	return m
}

// Rejected counts a pipeline rejection
func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

// LeaseAcquired marks a lease as checked out
func (m *Metrics) LeaseAcquired(scope string) {
	if m == nil {
		return
	}
	m.LeasesInFlight.WithLabelValues(scope).Inc()
}

// LeaseReleased marks a lease as returned, or discarded when the scope reset failed
func (m *Metrics) LeaseReleased(scope string, discarded bool) {
	if m == nil {
		return
	}
	outcome := "returned"
	if discarded {
		outcome = "discarded"
	}
	m.LeasesInFlight.WithLabelValues(scope).Dec()
	m.LeaseReleases.WithLabelValues(scope, outcome).Inc()
}

// LeaseFailed counts a lease or scope failure
func (m *Metrics) LeaseFailed(scope, stage string) {
	if m == nil {
		return
	}
	m.LeaseFailures.WithLabelValues(scope, stage).Inc()
}

// AuditWarning counts a query audit finding
func (m *Metrics) AuditWarning(table string, indirect bool) {
	if m == nil {
		return
	}
	label := "false"
	if indirect {
		label = "true"
	}
	m.AuditWarnings.WithLabelValues(table, label).Inc()
}

// TaskDropped counts a background task rejected by a full queue
func (m *Metrics) TaskDropped(kind string) {
	if m == nil {
		return
	}
	m.DroppedTasks.WithLabelValues(kind).Inc()
}

// CacheStatsFunc reports cumulative hits and misses of an in-process cache and its current size
type CacheStatsFunc func() (hits, misses uint64, size int)

// RegisterCache exports the statistics of a named in-process cache with reg
func RegisterCache(reg prometheus.Registerer, cache string, stats CacheStatsFunc) {
	labels := prometheus.Labels{"cache": cache}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cache_hits_total",
			Help:        "In-process cache lookups served from the cache.",
			ConstLabels: labels,
		}, func() float64 {
			hits, _, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cache_misses_total",
			Help:        "In-process cache lookups that went to the backing store.",
			ConstLabels: labels,
		}, func() float64 {
			_, misses, _ := stats()
			return float64(misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cache_entries",
			Help:        "Entries currently held by an in-process cache.",
			ConstLabels: labels,
		}, func() float64 {
			_, _, size := stats()
			return float64(size)
		}),
	)
}

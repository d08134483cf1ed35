// Package pbixmetrics instruments the DataModel decode pipeline with
// Prometheus metrics, grounded on the same promauto.With(registerer)
// pattern the teacher's cache layers use.
package pbixmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds one set of pipeline counters/histograms bound to a single
// prometheus.Registerer. A nil *Metrics is safe to call methods on - every
// method is a no-op in that case, so callers that don't want metrics (the
// CLI, most tests) can simply pass nil through.
type Metrics struct {
	stageDuration   *prometheus.HistogramVec
	columnsDecoded  *prometheus.CounterVec
	columnsSkipped  *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// New registers the pipeline's metrics against reg. Passing a fresh
// prometheus.NewRegistry() keeps tests from colliding with the default
// global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbixdm",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each DataModel decode pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		columnsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbixdm",
			Name:      "columns_decoded_total",
			Help:      "Number of VertiPaq columns successfully decoded.",
		}, []string{"table"}),
		columnsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbixdm",
			Name:      "columns_skipped_total",
			Help:      "Number of VertiPaq columns skipped due to a decode error.",
		}, []string{"table"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbixdm",
			Name:      "file_cache_hits_total",
			Help:      "Number of storage-file cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbixdm",
			Name:      "file_cache_misses_total",
			Help:      "Number of storage-file cache misses.",
		}),
	}
}

// ObserveStage records how long a named pipeline stage (decompress, abf,
// sqlite, schema) took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ColumnDecoded records one successfully decoded column of table.
func (m *Metrics) ColumnDecoded(table string) {
	if m == nil {
		return
	}
	m.columnsDecoded.WithLabelValues(table).Inc()
}

// ColumnSkipped records one column of table dropped by a non-fatal decode
// error.
func (m *Metrics) ColumnSkipped(table string) {
	if m == nil {
		return
	}
	m.columnsSkipped.WithLabelValues(table).Inc()
}

// CacheHit and CacheMiss record one lookup against the storage-file cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

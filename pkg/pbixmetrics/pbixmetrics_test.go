package pbixmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("decompress", time.Millisecond)
		m.ColumnDecoded("Sales")
		m.ColumnSkipped("Sales")
		m.CacheHit()
		m.CacheMiss()
	})
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ColumnDecoded("Sales")
	m.ColumnDecoded("Sales")
	m.ColumnSkipped("Sales")
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			counts[f.GetName()] += counterValue(metric)
		}
	}
	assert.Equal(t, float64(2), counts["pbixdm_columns_decoded_total"])
	assert.Equal(t, float64(1), counts["pbixdm_columns_skipped_total"])
	assert.Equal(t, float64(1), counts["pbixdm_file_cache_hits_total"])
	assert.Equal(t, float64(2), counts["pbixdm_file_cache_misses_total"])
}

func counterValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSync(reg)
	m.ObserveReplay("create_trip", OutcomeSynced)
	m.ObserveReplay("create_trip", OutcomeSynced)
	m.ObserveReplay("", OutcomeDropped)
	m.SetQueueSize(4)
	m.ObserveDrain(120 * time.Millisecond)
	m.IncSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	synced := findMetric(t, mfs, "smartcart_sync_replays_total", map[string]string{"kind": "create_trip", "outcome": OutcomeSynced})
	assert.Equal(t, 2.0, synced.GetCounter().GetValue())
	dropped := findMetric(t, mfs, "smartcart_sync_replays_total", map[string]string{"kind": "unknown", "outcome": OutcomeDropped})
	assert.Equal(t, 1.0, dropped.GetCounter().GetValue())

	queue := findMetric(t, mfs, "smartcart_sync_queue_size", nil)
	assert.Equal(t, 4.0, queue.GetGauge().GetValue())
	drain := findMetric(t, mfs, "smartcart_sync_drain_duration_seconds", nil)
	assert.Equal(t, uint64(1), drain.GetHistogram().GetSampleCount())
	skipped := findMetric(t, mfs, "smartcart_sync_drains_skipped_total", nil)
	assert.Equal(t, 1.0, skipped.GetCounter().GetValue())
}

func TestRPCMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRPC(reg)
	m.Observe("/smartcart.v1.Trips/ListTrips", "OK", 5*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	calls := findMetric(t, mfs, "smartcart_rpc_calls_total", map[string]string{"method": "/smartcart.v1.Trips/ListTrips", "code": "OK"})
	assert.Equal(t, 1.0, calls.GetCounter().GetValue())
}

func TestPoolGaugesReadAtScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	snap := PoolSnapshot{Acquired: 1, Idle: 2, Total: 3, Max: 4}
	RegisterPool(reg, func() PoolSnapshot { return snap })

	snap.Acquired = 3
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 3.0, findMetric(t, mfs, "smartcart_db_pool_acquired_connections", nil).GetGauge().GetValue())
	assert.Equal(t, 4.0, findMetric(t, mfs, "smartcart_db_pool_max_connections", nil).GetGauge().GetValue())
}

func TestNilMetricsAreNoops(t *testing.T) {
	var s *Sync
	s.ObserveReplay("x", OutcomeSynced)
	s.SetQueueSize(1)
	s.ObserveDrain(time.Second)
	s.IncSkipped()
	NewSync(nil).IncSkipped()

	var r *RPC
	r.Observe("m", "OK", time.Second)
	NewRPC(nil).Observe("m", "OK", time.Second)
	RegisterPool(nil, nil)
}

func findMetric(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchesLabels(m.GetLabel(), labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	got := make(map[string]string, len(pairs))
	for _, p := range pairs {
		got[p.GetName()] = p.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

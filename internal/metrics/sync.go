// Package metrics holds the Prometheus collectors for the client sync loop
// and the backend RPC surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Replay outcomes.
const (
	OutcomeSynced   = "synced"
	OutcomeRetrying = "retrying"
	OutcomeDropped  = "dropped"
)

// Sync records mutation replay activity.
type Sync struct {
	replays  *prometheus.CounterVec
	queue    prometheus.Gauge
	duration prometheus.Histogram
	skipped  prometheus.Counter
}

// NewSync registers the sync metrics on reg. A nil reg yields a no-op value.
func NewSync(reg prometheus.Registerer) *Sync {
	if reg == nil {
		return &Sync{}
	}
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartcart",
		Name:      "sync_replays_total",
		Help:      "Queued mutations replayed, by kind and outcome.",
	}, []string{"kind", "outcome"})
	queue := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartcart",
		Name:      "sync_queue_size",
		Help:      "Mutations waiting to be replayed.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartcart",
		Name:      "sync_drain_duration_seconds",
		Help:      "Duration of queue drains in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smartcart",
		Name:      "sync_drains_skipped_total",
		Help:      "Drains skipped because another drain was running.",
	})
	reg.MustRegister(replays, queue, duration, skipped)
	return &Sync{replays: replays, queue: queue, duration: duration, skipped: skipped}
}

// ObserveReplay counts one replay attempt.
func (s *Sync) ObserveReplay(kind, outcome string) {
	if s == nil || s.replays == nil {
		return
	}
	s.replays.WithLabelValues(normalizeLabel(kind), outcome).Inc()
}

// SetQueueSize records the current queue length.
func (s *Sync) SetQueueSize(n int) {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Set(float64(n))
}

// ObserveDrain records how long a drain took.
func (s *Sync) ObserveDrain(d time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.Observe(d.Seconds())
}

// IncSkipped counts a drain that did not run.
func (s *Sync) IncSkipped() {
	if s == nil || s.skipped == nil {
		return
	}
	s.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

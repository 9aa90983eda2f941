package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPC records backend call counts and latency.
type RPC struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRPC registers the RPC metrics on reg. A nil reg yields a no-op value.
func NewRPC(reg prometheus.Registerer) *RPC {
	if reg == nil {
		return &RPC{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartcart",
		Name:      "rpc_calls_total",
		Help:      "RPCs handled, by method and status code.",
	}, []string{"method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartcart",
		Name:      "rpc_duration_seconds",
		Help:      "RPC handling latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	reg.MustRegister(calls, duration)
	return &RPC{calls: calls, duration: duration}
}

// Observe records one handled call.
func (r *RPC) Observe(method, code string, d time.Duration) {
	if r == nil || r.calls == nil {
		return
	}
	method = normalizeLabel(method)
	r.calls.WithLabelValues(method, code).Inc()
	r.duration.WithLabelValues(method).Observe(d.Seconds())
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolSnapshot is a point-in-time view of a database connection pool.
type PoolSnapshot struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// RegisterPool exports gauges read from stat at scrape time. A nil reg is a no-op.
func RegisterPool(reg prometheus.Registerer, stat func() PoolSnapshot) {
	if reg == nil {
		return
	}
	gauge := func(name, help string, pick func(PoolSnapshot) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "smartcart",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stat())) })
	}
	reg.MustRegister(
		gauge("acquired_connections", "Connections currently in use.", func(s PoolSnapshot) int32 { return s.Acquired }),
		gauge("idle_connections", "Idle connections.", func(s PoolSnapshot) int32 { return s.Idle }),
		gauge("total_connections", "Open connections.", func(s PoolSnapshot) int32 { return s.Total }),
		gauge("max_connections", "Pool size limit.", func(s PoolSnapshot) int32 { return s.Max }),
	)
}

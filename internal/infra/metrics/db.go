package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pgConnections, pgEmptyAcquires) }

var (
	pgConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_pg_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // acquired, idle, max
	)

	pgEmptyAcquires = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_pg_empty_acquires",
			Help: "Acquires that had to wait for a connection since the pool started.",
		},
	)
)

// PoolSnapshot is the subset of pool statistics worth graphing.
type PoolSnapshot struct {
	Acquired, Idle, Max int32
	EmptyAcquires       int64
}

func ObservePool(s PoolSnapshot) {
	pgConnections.WithLabelValues("acquired").Set(float64(s.Acquired))
	pgConnections.WithLabelValues("idle").Set(float64(s.Idle))
	pgConnections.WithLabelValues("max").Set(float64(s.Max))
	pgEmptyAcquires.Set(float64(s.EmptyAcquires))
}

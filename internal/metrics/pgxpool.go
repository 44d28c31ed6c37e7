package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterPgxPoolMetrics exposes connection pool statistics for the
// daemon's database pool as gauges on the given registerer.
func RegisterPgxPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backhaul_pgxpool_acquired_conns",
		Help: "Number of currently acquired connections in the pool",
	}, func() float64 {
		return float64(pool.Stat().AcquiredConns())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backhaul_pgxpool_max_conns",
		Help: "Maximum number of connections in the pool",
	}, func() float64 {
		return float64(pool.Stat().MaxConns())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backhaul_pgxpool_total_conns",
		Help: "Total number of connections in the pool",
	}, func() float64 {
		return float64(pool.Stat().TotalConns())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "backhaul_pgxpool_idle_conns",
		Help: "Number of idle connections in the pool",
	}, func() float64 {
		return float64(pool.Stat().IdleConns())
	})
}

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	BotsInFlight  prometheus.Gauge
	BotsStarted   prometheus.Counter
	BotsReaped    prometheus.Counter
	DispatchTotal *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BotsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "backhaul_bots_in_flight",
			Help: "Number of bots currently registered in the pool",
		}),
		BotsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "backhaul_bots_started_total",
			Help: "Total bots started by the pool loop",
		}),
		BotsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "backhaul_bots_reaped_total",
			Help: "Total finished bots removed from the pool",
		}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "backhaul_dispatch_total",
			Help: "Dispatcher pass outcomes per component",
		}, []string{"component", "result"}),
	}
}

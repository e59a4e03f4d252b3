package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ExecutionCollector exposes per-transaction execution metrics (gas used,
// outcome counts) through the standard Prometheus client, registered
// against prometheus.DefaultRegisterer. It lives alongside the
// zero-dependency Registry/PrometheusExporter pair above: that pair serves
// the engine's own lightweight counters/gauges/histograms, while
// ExecutionCollector is for callers embedding this engine in a larger
// service that already scrapes client_golang's default registry.
type ExecutionCollector struct {
	GasUsed      prometheus.Histogram
	Transactions *prometheus.CounterVec
}

// NewExecutionCollector builds and registers an ExecutionCollector. Pass a
// *prometheus.Registry (or nil for the global DefaultRegisterer).
func NewExecutionCollector(reg prometheus.Registerer) *ExecutionCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &ExecutionCollector{
		GasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evmkit",
			Name:      "tx_gas_used",
			Help:      "Gas used per executed transaction.",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 12),
		}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evmkit",
			Name:      "transactions_total",
			Help:      "Transactions processed by the executive driver, labeled by outcome.",
		}, []string{"status"}),
	}
	reg.MustRegister(c.GasUsed, c.Transactions)
	return c
}

// Observe records one finished transaction's gas usage and outcome label
// (e.g. "normal", "reverted", "failed").
func (c *ExecutionCollector) Observe(status string, gasUsed uint64) {
	c.GasUsed.Observe(float64(gasUsed))
	c.Transactions.WithLabelValues(status).Inc()
}

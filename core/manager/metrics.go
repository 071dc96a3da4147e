package manager

import "github.com/prometheus/client_golang/prometheus"

// Transaction outcomes reported to the metrics.
const (
	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
)

// managerMetrics gathers the collectors of one manager instance. Each
// manager owns a private registry so several instances can coexist; the node
// exposes the registry through its own HTTP surface.
type managerMetrics struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	gasUsed      prometheus.Histogram
	contracts    prometheus.Gauge
}

func newMetrics() *managerMetrics {
	m := &managerMetrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "porw",
			Subsystem: "contracts",
			Name:      "transactions_total",
			Help:      "Total number of contract transactions by outcome.",
		}, []string{"outcome"}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "porw",
			Subsystem: "contracts",
			Name:      "gas_used",
			Help:      "Gas consumed per executed transaction.",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 7),
		}),
		contracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "porw",
			Subsystem: "contracts",
			Name:      "registered",
			Help:      "Number of contracts in the registry.",
		}),
	}

	m.registry.MustRegister(m.transactions, m.gasUsed, m.contracts)

	return m
}

func (m *managerMetrics) observe(outcome string, gasUsed uint64) {
	m.transactions.WithLabelValues(outcome).Inc()

	if outcome != outcomeRejected {
		m.gasUsed.Observe(float64(gasUsed))
	}
}

// Package metrics exposes operation outcomes as prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	operations *prometheus.CounterVec
	lamports   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		lamports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "moved_lamports_total",
			Help:      "Lamports moved by successful operations.",
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.lamports} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Record counts one operation. Amounts only count when outcome is "ok".
func (m *Metrics) Record(op, outcome string, amount uint64) {
	m.operations.WithLabelValues(op, outcome).Inc()
	if outcome == "ok" {
		m.lamports.WithLabelValues(op).Add(float64(amount))
	}
}

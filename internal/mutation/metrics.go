package mutation

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a Mutation records into. The
// zero value is not usable; build one with NewMetrics.
type Metrics struct {
	AttemptLatency *prometheus.HistogramVec
	Outcomes       *prometheus.CounterVec
	// TableCorrupted counts SequoiaTableCorrupted outcomes on their own,
	// independent of the outcome-labeled counter, so an operator dashboard
	// can alert on it directly without a label filter.
	TableCorrupted prometheus.Counter
}

// NewMetrics builds a Metrics and registers its collectors with reg. reg
// may be nil, in which case the collectors are left unregistered (useful
// in tests that only want the Observe/Inc calls not to panic).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sequoia_mutation_attempt_latency_seconds",
			Help:    "Latency of a single Sequoia mutation attempt, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sequoia_mutation_outcomes_total",
			Help: "Count of Sequoia mutation attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),
		TableCorrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sequoia_table_corrupted_total",
			Help: "Count of SequoiaTableCorrupted errors observed across all operations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.AttemptLatency, m.Outcomes, m.TableCorrupted)
	}
	return m
}

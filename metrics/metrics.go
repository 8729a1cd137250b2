// Package metrics exposes Prometheus instrumentation for padding oracle attacks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "padoracle"

// Query kinds.
const (
	KindProbe   = "probe"
	KindConfirm = "confirm"
)

// Metrics groups the collectors updated by the attack. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OracleQueries   *prometheus.CounterVec
	FalsePositives  prometheus.Counter
	BytesRecovered  prometheus.Counter
	BlocksRecovered prometheus.Counter
	BlocksFailed    prometheus.Counter
	BlockDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OracleQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_queries_total",
			Help:      "Padding oracle queries issued, by kind.",
		}, []string{"kind"}),
		FalsePositives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "false_positives_total",
			Help:      "Last-byte guesses rejected by the confirmation probe.",
		}),
		BytesRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_recovered_total",
			Help:      "Intermediate bytes recovered.",
		}),
		BlocksRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_recovered_total",
			Help:      "Ciphertext blocks fully recovered.",
		}),
		BlocksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_failed_total",
			Help:      "Ciphertext blocks whose recovery failed.",
		}),
		BlockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_duration_seconds",
			Help:      "Time spent recovering one block.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OracleQueries,
			m.FalsePositives,
			m.BytesRecovered,
			m.BlocksRecovered,
			m.BlocksFailed,
			m.BlockDuration,
		)
	}

	return m
}

func (m *Metrics) Query(kind string) {
	if m == nil {
		return
	}
	m.OracleQueries.WithLabelValues(kind).Inc()
}

func (m *Metrics) FalsePositive() {
	if m == nil {
		return
	}
	m.FalsePositives.Inc()
}

func (m *Metrics) ByteRecovered() {
	if m == nil {
		return
	}
	m.BytesRecovered.Inc()
}

// BlockDone records the outcome and duration of one block.
func (m *Metrics) BlockDone(seconds float64, err error) {
	if m == nil {
		return
	}
	m.BlockDuration.Observe(seconds)
	if err != nil {
		m.BlocksFailed.Inc()
		return
	}
	m.BlocksRecovered.Inc()
}

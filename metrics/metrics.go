package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "daokeeper"

// Scan and relay outcomes used as label values.
const (
	OutcomeOK    = "ok"
	OutcomeBusy  = "busy"
	OutcomeError = "error"
)

var _ Metrics = (*metrics)(nil)

type Metrics interface {
	MarkScan(outcome string)
	MarkExecuted()
	MarkSkipped(reason string)
	MarkRelay(outcome string)
}

type metrics struct {
	scans    *prometheus.CounterVec
	executed prometheus.Counter
	skipped  *prometheus.CounterVec
	relays   *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) (Metrics, error) {
	m := &metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scans_total",
			Help:      "Number of daemon scans by outcome",
		}, []string{"outcome"}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "proposals_executed_total",
			Help:      "Number of proposals executed by the daemon",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "proposals_skipped_total",
			Help:      "Number of proposals skipped by the daemon by reason",
		}, []string{"reason"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_requests_total",
			Help:      "Number of relay requests by outcome",
		}, []string{"outcome"}),
	}
	err := errors.Join(
		registerer.Register(m.scans),
		registerer.Register(m.executed),
		registerer.Register(m.skipped),
		registerer.Register(m.relays),
	)
	return m, err
}

func (m *metrics) MarkScan(outcome string) {
	m.scans.WithLabelValues(outcome).Inc()
}

func (m *metrics) MarkExecuted() {
	m.executed.Inc()
}

// MarkSkipped takes the status token only, never the detailed reason, to
// keep label cardinality bounded.
func (m *metrics) MarkSkipped(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *metrics) MarkRelay(outcome string) {
	m.relays.WithLabelValues(outcome).Inc()
}

type noop struct{}

// NewNoop returns a Metrics that records nothing.
func NewNoop() Metrics { return noop{} }

func (noop) MarkScan(string)    {}
func (noop) MarkExecuted()      {}
func (noop) MarkSkipped(string) {}
func (noop) MarkRelay(string)   {}

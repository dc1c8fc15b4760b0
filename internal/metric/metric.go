// Package metric holds the Prometheus collectors for design analysis.
package metric

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "figmento"
	subsystem = "analysis"
)

// Outcome labels for RequestsTotal.
const (
	OutcomeOK        = "ok"
	OutcomeRepaired  = "repaired"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Metrics are the analysis collectors. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec   // provider, outcome
	Retries       *prometheus.CounterVec   // provider
	Truncations   *prometheus.CounterVec   // provider
	Repairs       *prometheus.CounterVec   // provider
	Duration      *prometheus.HistogramVec // provider
}

// New creates the collectors and registers them on reg. A collector that
// is already registered is reused, so two analyzers may share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Analysis calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Request attempts retried after a transient failure",
		}, []string{"provider"}),
		Truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "truncations_total",
			Help:      "Responses cut off by the output token limit",
		}, []string{"provider"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "repairs_total",
			Help:      "Documents recovered by structural JSON repair",
		}, []string{"provider"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Wall time of analysis calls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
	}

	var err error
	m.RequestsTotal = register(reg, m.RequestsTotal, &err)
	m.Retries = register(reg, m.Retries, &err)
	m.Truncations = register(reg, m.Truncations, &err)
	m.Repairs = register(reg, m.Repairs, &err)
	m.Duration = register(reg, m.Duration, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

func (m *Metrics) ObserveRequest(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.Duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) IncRetry(provider string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncTruncation(provider string) {
	if m == nil {
		return
	}
	m.Truncations.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncRepair(provider string) {
	if m == nil {
		return
	}
	m.Repairs.WithLabelValues(provider).Inc()
}

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the engine loop. All collectors are registered on the
// registerer passed to NewMetrics, so tests can use isolated registries.
type Metrics struct {
	routeDecisions *prometheus.CounterVec
	generations    *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	interrupts     *prometheus.CounterVec
	workflowStep   prometheus.Gauge
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propforge",
			Name:      "route_decisions_total",
			Help:      "Routing decisions by action kind.",
		}, []string{"action"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propforge",
			Name:      "section_generations_total",
			Help:      "Section generation attempts by outcome.",
		}, []string{"outcome"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propforge",
			Name:      "section_evaluations_total",
			Help:      "Section evaluations by verdict.",
		}, []string{"verdict"}),
		interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "propforge",
			Name:      "interrupts_total",
			Help:      "Interrupts raised and resumed, by event.",
		}, []string{"event"}),
		workflowStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "propforge",
			Name:      "workflow_step",
			Help:      "Current workflow step counter.",
		}),
	}
	reg.MustRegister(m.routeDecisions, m.generations, m.evaluations, m.interrupts, m.workflowStep)
	return m
}

// NopMetrics returns metrics backed by an unexported registry, for callers
// that do not scrape.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) routed(action string, step int) {
	m.routeDecisions.WithLabelValues(action).Inc()
	m.workflowStep.Set(float64(step))
}

func (m *Metrics) generated(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) evaluated(passed bool) {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	m.evaluations.WithLabelValues(verdict).Inc()
}

func (m *Metrics) interrupted(event string) {
	m.interrupts.WithLabelValues(event).Inc()
}

// Package observability exports run metrics to Prometheus. The collectors are
// fed purely from event-bus subscriptions, so the execution core stays free
// of any metrics dependency.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/events"
)

// Metrics holds the Prometheus collectors for scenario execution.
type Metrics struct {
	turnsTotal       prometheus.Counter
	phasesTotal      *prometheus.CounterVec
	phasesSkipped    *prometheus.CounterVec
	costUSDTotal     prometheus.Counter
	cacheHitsTotal   prometheus.Counter
	cachedCallsSaved prometheus.Counter
	decisionsTotal   *prometheus.CounterVec
	validationTotal  prometheus.Counter
	runsEndedTotal   *prometheus.CounterVec
	creditWarnings   prometheus.Counter
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_turns_completed_total",
			Help: "Completed simulation turns.",
		}),
		phasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scenariolab_phases_completed_total",
			Help: "Completed phases by name.",
		}, []string{"phase"}),
		phasesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scenariolab_phases_skipped_total",
			Help: "Skipped phases by name.",
		}, []string{"phase"}),
		costUSDTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_cost_usd_total",
			Help: "Accumulated model cost in USD.",
		}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_cache_hits_total",
			Help: "Response cache hits.",
		}),
		cachedCallsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_cache_saved_usd_total",
			Help: "Estimated USD saved by cache hits.",
		}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scenariolab_decisions_total",
			Help: "Recorded decisions by outcome.",
		}, []string{"outcome"}),
		validationTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_validation_issues_total",
			Help: "Validation issues raised.",
		}),
		runsEndedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scenariolab_runs_ended_total",
			Help: "Runs reaching a final status, by outcome.",
		}, []string{"outcome"}),
		creditWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "scenariolab_credit_limit_warnings_total",
			Help: "Credit limit warnings emitted.",
		}),
	}
}

// Attach subscribes the collectors to the bus. The returned function removes
// every subscription.
func (m *Metrics) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(domain.EventTurnCompleted, func(domain.Event) {
			m.turnsTotal.Inc()
		}),
		bus.Subscribe(domain.EventPhaseCompleted, func(evt domain.Event) {
			m.phasesTotal.WithLabelValues(string(evt.Phase)).Inc()
		}),
		bus.Subscribe(domain.EventPhaseSkipped, func(evt domain.Event) {
			m.phasesSkipped.WithLabelValues(string(evt.Phase)).Inc()
		}),
		bus.Subscribe(domain.EventCostIncurred, func(evt domain.Event) {
			if usd, ok := evt.Payload["cost_usd"].(float64); ok {
				m.costUSDTotal.Add(usd)
			}
		}),
		bus.Subscribe(domain.EventCacheHit, func(evt domain.Event) {
			m.cacheHitsTotal.Inc()
			if usd, ok := evt.Payload["saved_usd"].(float64); ok {
				m.cachedCallsSaved.Add(usd)
			}
		}),
		bus.Subscribe(domain.EventDecisionRecorded, func(evt domain.Event) {
			outcome := "ok"
			if degraded, _ := evt.Payload["degraded"].(bool); degraded {
				outcome = "degraded"
			}
			m.decisionsTotal.WithLabelValues(outcome).Inc()
		}),
		bus.Subscribe(domain.EventValidationIssue, func(domain.Event) {
			m.validationTotal.Inc()
		}),
		bus.Subscribe(domain.EventCreditWarning, func(domain.Event) {
			m.creditWarnings.Inc()
		}),
		bus.Subscribe(domain.EventScenarioFinished, func(domain.Event) {
			m.runsEndedTotal.WithLabelValues("completed").Inc()
		}),
		bus.Subscribe(domain.EventScenarioHalted, func(evt domain.Event) {
			reason, _ := evt.Payload["reason"].(string)
			m.runsEndedTotal.WithLabelValues("halted_" + reason).Inc()
		}),
		bus.Subscribe(domain.EventScenarioFailed, func(domain.Event) {
			m.runsEndedTotal.WithLabelValues("failed").Inc()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

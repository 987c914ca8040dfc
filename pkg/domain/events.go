package domain

import "time"

// EventType enumerates the observability events emitted by the orchestrator.
type EventType string

const (
	EventTurnStarted      EventType = "turn_started"
	EventTurnCompleted    EventType = "turn_completed"
	EventPhaseCompleted   EventType = "phase_completed"
	EventPhaseSkipped     EventType = "phase_skipped"
	EventCostIncurred     EventType = "cost_incurred"
	EventCreditWarning    EventType = "credit_limit_warning"
	EventScenarioHalted   EventType = "scenario_halted"
	EventScenarioFinished EventType = "scenario_finished"
	EventScenarioFailed   EventType = "scenario_failed"
	EventValidationIssue  EventType = "validation_issue"
	EventDecisionRecorded EventType = "decision_recorded"
	EventCacheHit         EventType = "cache_hit"
)

// Event is one observability record. RunID doubles as the correlation id so
// that events from concurrent runs are distinguishable on a shared bus.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Turn      int            `json:"turn,omitempty"`
	Phase     PhaseName      `json:"phase,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event with a UTC-normalized timestamp.
func NewEvent(t EventType, runID string, turn int, phase PhaseName, now time.Time) Event {
	return Event{
		Type:      t,
		RunID:     runID,
		Turn:      turn,
		Phase:     phase,
		Timestamp: now.UTC(),
	}
}

// WithPayload attaches a payload entry and returns the event for chaining.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any, 1)
	}
	e.Payload[key] = value
	return e
}

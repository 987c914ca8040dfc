package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

func evt(t domain.EventType, runID string) domain.Event {
	return domain.NewEvent(t, runID, 1, domain.PhaseDecision, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(domain.EventTurnStarted, func(domain.Event) { got = append(got, "first") })
	bus.Subscribe(domain.EventTurnStarted, func(domain.Event) { got = append(got, "second") })
	bus.Subscribe(domain.EventTurnStarted, func(domain.Event) { got = append(got, "third") })

	bus.Publish(evt(domain.EventTurnStarted, "run-1"))

	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestSubscriptionIsPerType(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Subscribe(domain.EventTurnCompleted, func(domain.Event) { calls++ })

	bus.Publish(evt(domain.EventTurnStarted, "run-1"))
	assert.Zero(t, calls)

	bus.Publish(evt(domain.EventTurnCompleted, "run-1"))
	assert.Equal(t, 1, calls)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus()
	reached := false

	bus.Subscribe(domain.EventCostIncurred, func(domain.Event) { panic("broken subscriber") })
	bus.Subscribe(domain.EventCostIncurred, func(domain.Event) { reached = true })

	assert.NotPanics(t, func() {
		bus.Publish(evt(domain.EventCostIncurred, "run-1"))
	})
	assert.True(t, reached, "later handlers must still run after a panic")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe(domain.EventTurnStarted, func(domain.Event) { calls++ })

	bus.Publish(evt(domain.EventTurnStarted, "run-1"))
	cancel()
	bus.Publish(evt(domain.EventTurnStarted, "run-1"))

	assert.Equal(t, 1, calls)
}

func TestHistoryBufferIsBoundedAndPerRun(t *testing.T) {
	bus := NewBus(WithHistorySize(3))

	for i := 0; i < 5; i++ {
		bus.Publish(evt(domain.EventTurnCompleted, "run-a"))
	}
	bus.Publish(evt(domain.EventTurnStarted, "run-b"))

	history := bus.History("run-a")
	require.Len(t, history, 3, "history keeps only the last N events")
	assert.Len(t, bus.History("run-b"), 1)
	assert.Empty(t, bus.History("run-unknown"))

	bus.Forget("run-a")
	assert.Empty(t, bus.History("run-a"))
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()
	var types []domain.EventType
	bus.SubscribeAll(func(e domain.Event) { types = append(types, e.Type) })

	bus.Publish(evt(domain.EventTurnStarted, "run-1"))
	bus.Publish(evt(domain.EventScenarioFinished, "run-1"))

	assert.Equal(t, []domain.EventType{domain.EventTurnStarted, domain.EventScenarioFinished}, types)
}

func TestCorrelationIDIsCarried(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.SubscribeAll(func(e domain.Event) { seen = append(seen, e.RunID) })

	bus.Publish(evt(domain.EventTurnStarted, "run-a"))
	bus.Publish(evt(domain.EventTurnStarted, "run-b"))

	assert.Equal(t, []string{"run-a", "run-b"}, seen)
}

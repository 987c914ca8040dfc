package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestState() *ScenarioState {
	return NewScenarioState("trade-wars", "run-1", []ActorState{
		{Name: "Atlantis", ShortName: "atl", Model: "claude-sonnet-4"},
		{Name: "Borduria", ShortName: "bor", Model: "claude-sonnet-4"},
	})
}

func TestTransformsLeaveReceiverUnchanged(t *testing.T) {
	base := newTestState()
	snapshot, err := Serialize(base)
	require.NoError(t, err)

	started, err := base.WithStarted(testTime)
	require.NoError(t, err)

	_ = started.
		WithTurn(1).
		WithPhase(PhaseDecision).
		WithWorldState(NewWorldState(1, "opening", testTime)).
		WithDecision(NewDecision("Atlantis", 1, []string{"expand"}, "because", "acts", testTime)).
		WithCommunication(NewCommunication(1, "Atlantis", nil, "hello all", "", testTime)).
		WithCost(CostRecord{Turn: 1, Phase: PhaseDecision, Model: "claude-sonnet-4", CostUSD: 0.5, Timestamp: testTime}).
		WithMeta("note", "x").
		WithTriggeredEvent("earthquake").
		WithTurnArchived()

	after, err := Serialize(base)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(after), "base state must not be altered by any transform")
}

func TestAppendDoesNotLeakIntoOlderState(t *testing.T) {
	s1 := newTestState().WithCost(CostRecord{Turn: 1, CostUSD: 1})
	s2 := s1.WithCost(CostRecord{Turn: 2, CostUSD: 2})
	s3 := s1.WithCost(CostRecord{Turn: 2, CostUSD: 4})

	assert.Len(t, s1.Costs, 1)
	assert.Equal(t, 2.0, s2.Costs[1].CostUSD)
	assert.Equal(t, 4.0, s3.Costs[1].CostUSD, "sibling states must not share append slots")
}

func TestWithDecisionRollingHistory(t *testing.T) {
	s := newTestState()
	for turn := 1; turn <= 7; turn++ {
		s = s.WithTurn(turn).WithDecision(NewDecision("Atlantis", turn, nil, "r", "a", testTime))
	}

	history := s.Actors["Atlantis"].RecentDecisions
	require.Len(t, history, MaxRecentDecisions)
	assert.Equal(t, 3, history[0].Turn, "oldest entries are evicted first")
	assert.Equal(t, 7, history[len(history)-1].Turn)
}

func TestTurnIsMonotonic(t *testing.T) {
	s := newTestState().WithTurn(4)
	assert.Equal(t, 4, s.WithTurn(2).Turn, "turn must never decrease")
}

func TestStatusMachine(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusRunning, true},
		{StatusRunning, StatusPaused, true},
		{StatusPaused, StatusRunning, true},
		{StatusRunning, StatusHalted, true},
		{StatusHalted, StatusRunning, true},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusCreated, StatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestWithStatusRejectsInvalidTransition(t *testing.T) {
	s := newTestState()
	done, err := s.WithStarted(testTime)
	require.NoError(t, err)
	done, err = done.WithCompleted(testTime)
	require.NoError(t, err)

	_, err = done.WithStatus(StatusRunning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDerivedAggregates(t *testing.T) {
	s := newTestState().
		WithCost(CostRecord{Actor: "Atlantis", Turn: 1, Phase: PhaseDecision, CostUSD: 0.25}).
		WithCost(CostRecord{Actor: "Borduria", Turn: 1, Phase: PhaseDecision, CostUSD: 0.5}).
		WithCost(CostRecord{Turn: 1, Phase: PhaseWorldUpdate, CostUSD: 1.0})

	assert.InDelta(t, 1.75, s.TotalCost(), 1e-9)
	assert.InDelta(t, 0.25, s.CostByActor()["Atlantis"], 1e-9)
	assert.InDelta(t, 1.0, s.CostByActor()[""], 1e-9, "system costs group under empty actor")
	assert.InDelta(t, 0.75, s.CostByPhase()[PhaseDecision], 1e-9)
}

func TestWithTurnArchivedResetsTurnScope(t *testing.T) {
	s := newTestState().
		WithTurn(1).
		WithWorldState(NewWorldState(1, "w1", testTime)).
		WithDecision(NewDecision("Atlantis", 1, nil, "r", "a", testTime)).
		WithCommunication(NewCommunication(1, "Atlantis", []string{"Borduria"}, "psst", "", testTime))

	archived := s.WithTurnArchived()

	assert.Empty(t, archived.Decisions)
	assert.Empty(t, archived.Communications)
	require.Contains(t, archived.Archives, 1)
	assert.Equal(t, "w1", archived.Archives[1].World.Narrative)
	assert.Len(t, archived.Archives[1].Decisions, 1)

	// Turn-scoped data on the source state is untouched.
	assert.Len(t, s.Decisions, 1)
	assert.Len(t, s.Communications, 1)
}

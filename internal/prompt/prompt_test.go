package prompt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Itangalo/scenario-lab-sub001/internal/prompt"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var _ ports.PromptBuilder = (*prompt.Builder)(nil)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testState() *domain.ScenarioState {
	actors := []domain.ActorState{
		{Name: "North", Model: "mock-model", Goals: []string{"expand trade"}, Private: "reserves are low"},
		{Name: "South", Model: "mock-model"},
	}
	state := domain.NewScenarioState("s", "run-1", actors).
		WithTurn(2).
		WithWorldState(domain.NewWorldState(1, "Tensions are rising.", now))
	return state
}

func TestActorPrompt_IncludesContext(t *testing.T) {
	b := prompt.New()
	state := testState()

	p := b.ActorPrompt(state, state.Actors["North"])
	assert.Contains(t, p, "You are North in turn 2")
	assert.Contains(t, p, "Tensions are rising.")
	assert.Contains(t, p, "- expand trade")
	assert.Contains(t, p, "reserves are low")
	assert.Contains(t, p, "ACTION:")
}

func TestActorPrompt_Deterministic(t *testing.T) {
	b := prompt.New()
	state := testState()
	actor := state.Actors["North"]

	assert.Equal(t, b.ActorPrompt(state, actor), b.ActorPrompt(state, actor))
}

func TestActorPrompt_FiltersPrivateMessages(t *testing.T) {
	b := prompt.New()
	state := testState().
		WithCommunication(domain.NewCommunication(2, "South", []string{"North"}, "secret offer", "", now)).
		WithCommunication(domain.NewCommunication(2, "South", nil, "public statement", "", now)).
		WithCommunication(domain.NewCommunication(2, "North", []string{"South"}, "counter offer", "", now))

	north := b.ActorPrompt(state, state.Actors["North"])
	assert.Contains(t, north, "secret offer")
	assert.Contains(t, north, "public statement")
	assert.Contains(t, north, "counter offer")

	observer := b.ActorPrompt(state, domain.ActorState{Name: "Observer", Model: "mock-model"})
	assert.NotContains(t, observer, "secret offer")
	assert.Contains(t, observer, "public statement")
}

func TestWorldPrompt_DecisionsInDeclarationOrder(t *testing.T) {
	b := prompt.New()
	state := testState().
		WithDecision(domain.NewDecision("South", 2, nil, "r", "retaliate", now)).
		WithDecision(domain.NewDecision("North", 2, nil, "r", "open talks", now))

	p := b.WorldPrompt(state)
	north := strings.Index(p, "North: open talks")
	south := strings.Index(p, "South: retaliate")
	assert.True(t, north >= 0 && south >= 0)
	assert.Less(t, north, south, "decisions must render in declared actor order")
}

func TestCommunicationPrompt(t *testing.T) {
	b := prompt.New()
	state := testState()

	p := b.CommunicationPrompt(state, state.Actors["North"], state.Actors["South"])
	assert.Contains(t, p, "You are North in turn 2. Compose a message to South.")
	assert.Contains(t, p, "Tensions are rising.")
}

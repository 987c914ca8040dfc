package ports

import (
	"context"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Phase is the single capability a turn stage exposes: transform the current
// state into the next one. Phases are selected through explicit registration
// on the orchestrator, never through type hierarchies.
type Phase interface {
	Name() domain.PhaseName
	Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error)
}

// PromptBuilder constructs the fully rendered prompts passed to the model
// transport. Implementations are content-aware collaborators; the core only
// forwards their output.
type PromptBuilder interface {
	// ActorPrompt renders the decision prompt for one actor.
	ActorPrompt(state *domain.ScenarioState, actor domain.ActorState) string

	// WorldPrompt renders the world-update prompt from the turn's decisions.
	WorldPrompt(state *domain.ScenarioState) string

	// CommunicationPrompt renders one side of a paired exchange.
	CommunicationPrompt(state *domain.ScenarioState, sender, recipient domain.ActorState) string
}

// Package prompt renders the text sent to model transports. The builder is
// deterministic: the same state always renders the same prompt, which is what
// makes the response cache fingerprint stable across resumed runs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Builder is the default prompt constructor. It implements
// ports.PromptBuilder.
type Builder struct{}

// New returns the default builder.
func New() *Builder {
	return &Builder{}
}

// ActorPrompt renders the decision prompt for one actor: current world,
// visible communications, the actor's goals and recent decisions.
func (b *Builder) ActorPrompt(state *domain.ScenarioState, actor domain.ActorState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s in turn %d of a multi-actor simulation.\n\n", actor.Name, state.Turn)

	if state.World != nil {
		sb.WriteString("## Current world state\n\n")
		sb.WriteString(state.World.Narrative)
		sb.WriteString("\n\n")
	}

	if len(actor.Goals) > 0 {
		sb.WriteString("## Your goals\n\n")
		for _, g := range actor.Goals {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("\n")
	}

	if actor.Private != "" {
		sb.WriteString("## Private information\n\n")
		sb.WriteString(actor.Private)
		sb.WriteString("\n\n")
	}

	if visible := visibleCommunications(state, actor.Name); len(visible) > 0 {
		sb.WriteString("## Messages this turn\n\n")
		for _, c := range visible {
			fmt.Fprintf(&sb, "From %s (%s): %s\n", c.Sender, c.Type, c.Content)
		}
		sb.WriteString("\n")
	}

	if len(actor.RecentDecisions) > 0 {
		sb.WriteString("## Your recent decisions\n\n")
		for _, d := range actor.RecentDecisions {
			fmt.Fprintf(&sb, "Turn %d: %s\n", d.Turn, d.Action)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Respond with your reasoning followed by a line starting with \"ACTION:\" describing what you do this turn.\n")
	return sb.String()
}

// WorldPrompt renders the world-update prompt from the turn's decisions, in
// declared actor order.
func (b *Builder) WorldPrompt(state *domain.ScenarioState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the narrator of a multi-actor simulation, resolving turn %d.\n\n", state.Turn)

	if state.World != nil {
		sb.WriteString("## Previous world state\n\n")
		sb.WriteString(state.World.Narrative)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Actions taken this turn\n\n")
	for _, name := range state.ActorOrder {
		if d, ok := state.Decisions[name]; ok {
			fmt.Fprintf(&sb, "%s: %s\n", name, d.Action)
		}
	}
	sb.WriteString("\nWrite the new world state narrative, incorporating the consequences of every action.\n")
	return sb.String()
}

// CommunicationPrompt renders one side of a paired exchange.
func (b *Builder) CommunicationPrompt(state *domain.ScenarioState, sender, recipient domain.ActorState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s in turn %d. Compose a message to %s.\n\n", sender.Name, state.Turn, recipient.Name)

	if state.World != nil {
		sb.WriteString("## Current world state\n\n")
		sb.WriteString(state.World.Narrative)
		sb.WriteString("\n\n")
	}

	if len(sender.Goals) > 0 {
		sb.WriteString("## Your goals\n\n")
		for _, g := range sender.Goals {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Write only the message body.\n")
	return sb.String()
}

// visibleCommunications filters the turn's messages to those the actor may
// see: public broadcasts, messages they sent, and messages addressed to them.
func visibleCommunications(state *domain.ScenarioState, actor string) []domain.Communication {
	var out []domain.Communication
	for _, c := range state.Communications {
		if c.Sender == actor || len(c.Recipients) == 0 {
			out = append(out, c)
			continue
		}
		for _, r := range c.Recipients {
			if r == actor {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Itangalo/scenario-lab-sub001/internal/config"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// decisionPhase fans out one task per actor and merges the results in
// declared actor order, so output is deterministic regardless of which call
// finishes first. A single actor's failure is isolated as a degraded
// decision; only a fail-closed pricing error aborts the phase.
type decisionPhase struct {
	orch *Orchestrator
}

func (p *decisionPhase) Name() domain.PhaseName {
	return domain.PhaseDecision
}

func (p *decisionPhase) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	o := p.orch
	results := make([]domain.Decision, len(state.ActorOrder))

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for i, name := range state.ActorOrder {
		actor, ok := state.Actors[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, actor domain.ActorState) {
			defer wg.Done()

			rendered := o.prompts.ActorPrompt(state, actor)
			reply, err := o.invoke(ctx, state.RunID, actor.Name, state.Turn, domain.PhaseDecision, actor.Model, rendered)
			if err != nil {
				if errors.Is(err, domain.ErrUnknownModel) {
					fatalMu.Lock()
					fatalErr = err
					fatalMu.Unlock()
				}
				o.logger.Warn("actor decision failed, recording degraded decision",
					"run_id", state.RunID,
					"turn", state.Turn,
					"actor", actor.Name,
					"err", err,
				)
				results[i] = domain.DegradedDecision(actor.Name, state.Turn, err.Error(), o.clock())
				return
			}

			reasoning, action, parsed := splitDecision(reply.Text)
			d := domain.NewDecision(actor.Name, state.Turn, actor.Goals, reasoning, action, o.clock())
			if !parsed {
				d.Meta = map[string]string{"parse_fallback": "true"}
			}
			results[i] = d
		}(i, actor)
	}
	wg.Wait()

	if fatalErr != nil {
		return state, fatalErr
	}

	for _, d := range results {
		if d.Actor == "" {
			continue
		}
		state = state.WithDecision(d)
		o.publish(domain.NewEvent(domain.EventDecisionRecorded, state.RunID, state.Turn, domain.PhaseDecision, o.clock()).
			WithPayload("actor", d.Actor).
			WithPayload("degraded", d.Degraded))
	}
	return state, nil
}

// splitDecision separates reasoning from the action line. Malformed output
// falls back to best-effort extraction and is flagged, never aborting the
// turn.
func splitDecision(text string) (reasoning, action string, parsed bool) {
	if idx := strings.Index(text, "ACTION:"); idx >= 0 {
		reasoning = strings.TrimSpace(text[:idx])
		rest := strings.TrimSpace(text[idx+len("ACTION:"):])
		if line, _, found := strings.Cut(rest, "\n"); found {
			action = strings.TrimSpace(line)
		} else {
			action = rest
		}
		if action != "" {
			return reasoning, action, true
		}
	}

	// Fallback: treat the last non-empty line as the action.
	lines := strings.Split(strings.TrimSpace(text), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		last = "no action"
	}
	return strings.TrimSpace(text), last, false
}

// communicationPhase runs the configured exchanges concurrently and merges
// the messages in declared pair order. With no pairs configured, every actor
// broadcasts one public message instead.
type communicationPhase struct {
	orch  *Orchestrator
	pairs []config.ActorPair
}

func (p *communicationPhase) Name() domain.PhaseName {
	return domain.PhaseCommunication
}

func (p *communicationPhase) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	if len(p.pairs) > 0 {
		return p.runPairs(ctx, state)
	}
	return p.runBroadcast(ctx, state)
}

func (p *communicationPhase) runPairs(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	o := p.orch
	messages := make([]*domain.Communication, len(p.pairs))

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for i, pair := range p.pairs {
		sender, okS := state.Actors[pair.From]
		recipient, okR := state.Actors[pair.To]
		if !okS || !okR {
			return state, fmt.Errorf("communication pair %s -> %s references unknown actor", pair.From, pair.To)
		}
		wg.Add(1)
		go func(i int, sender, recipient domain.ActorState) {
			defer wg.Done()

			rendered := o.prompts.CommunicationPrompt(state, sender, recipient)
			reply, err := o.invoke(ctx, state.RunID, sender.Name, state.Turn, domain.PhaseCommunication, sender.Model, rendered)
			if err != nil {
				if errors.Is(err, domain.ErrUnknownModel) {
					fatalMu.Lock()
					fatalErr = err
					fatalMu.Unlock()
				}
				o.logger.Warn("communication failed, message dropped",
					"run_id", state.RunID,
					"turn", state.Turn,
					"sender", sender.Name,
					"recipient", recipient.Name,
					"err", err,
				)
				return
			}
			c := domain.NewCommunication(state.Turn, sender.Name, []string{recipient.Name}, strings.TrimSpace(reply.Text), "", o.clock())
			messages[i] = &c
		}(i, sender, recipient)
	}
	wg.Wait()

	if fatalErr != nil {
		return state, fatalErr
	}
	for _, c := range messages {
		if c != nil {
			state = state.WithCommunication(*c)
		}
	}
	return state, nil
}

func (p *communicationPhase) runBroadcast(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	o := p.orch
	audience := domain.ActorState{Name: "all actors"}
	messages := make([]*domain.Communication, len(state.ActorOrder))

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for i, name := range state.ActorOrder {
		sender, ok := state.Actors[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, sender domain.ActorState) {
			defer wg.Done()

			rendered := o.prompts.CommunicationPrompt(state, sender, audience)
			reply, err := o.invoke(ctx, state.RunID, sender.Name, state.Turn, domain.PhaseCommunication, sender.Model, rendered)
			if err != nil {
				if errors.Is(err, domain.ErrUnknownModel) {
					fatalMu.Lock()
					fatalErr = err
					fatalMu.Unlock()
				}
				o.logger.Warn("broadcast failed, message dropped",
					"run_id", state.RunID,
					"turn", state.Turn,
					"sender", sender.Name,
					"err", err,
				)
				return
			}
			c := domain.NewCommunication(state.Turn, sender.Name, nil, strings.TrimSpace(reply.Text), domain.CommPublic, o.clock())
			messages[i] = &c
		}(i, sender)
	}
	wg.Wait()

	if fatalErr != nil {
		return state, fatalErr
	}
	for _, c := range messages {
		if c != nil {
			state = state.WithCommunication(*c)
		}
	}
	return state, nil
}

// worldUpdatePhase resolves the turn's decisions into a new world state. The
// world is replaced wholesale, never patched in place.
type worldUpdatePhase struct {
	orch *Orchestrator
}

func (p *worldUpdatePhase) Name() domain.PhaseName {
	return domain.PhaseWorldUpdate
}

func (p *worldUpdatePhase) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	o := p.orch

	m := o.worldModel
	if m == "" && len(state.ActorOrder) > 0 {
		m = state.Actors[state.ActorOrder[0]].Model
	}
	if m == "" {
		return state, fmt.Errorf("no model available for world update")
	}

	rendered := o.prompts.WorldPrompt(state)
	reply, err := o.invoke(ctx, state.RunID, "", state.Turn, domain.PhaseWorldUpdate, m, rendered)
	if err != nil {
		return state, fmt.Errorf("world update call failed: %w", err)
	}

	world := domain.NewWorldState(state.Turn, strings.TrimSpace(reply.Text), o.clock())
	return state.WithWorldState(world), nil
}

// validationPhase checks the turn's artifacts for consistency: deterministic
// built-in checks plus, when a validator model is configured, one model call
// evaluating the scenario's custom checks. Issues never fail the turn: they
// are emitted as events, counted into a metric record and flagged in metadata
// for downstream review.
type validationPhase struct {
	orch   *Orchestrator
	checks []string
	model  string
}

func (p *validationPhase) Name() domain.PhaseName {
	return domain.PhaseValidation
}

func (p *validationPhase) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	o := p.orch

	var issues []string
	for _, name := range state.ActorOrder {
		d, ok := state.Decisions[name]
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("actor %s has no decision for turn %d", name, state.Turn))
		case d.Degraded:
			issues = append(issues, fmt.Sprintf("actor %s produced a degraded decision", name))
		case d.Meta["parse_fallback"] == "true":
			issues = append(issues, fmt.Sprintf("actor %s decision used fallback extraction", name))
		}
	}
	if state.World == nil || strings.TrimSpace(state.World.Narrative) == "" {
		issues = append(issues, "world narrative is empty")
	}

	if p.model != "" && len(p.checks) > 0 {
		custom, err := p.runCustomChecks(ctx, state)
		if err != nil {
			return state, err
		}
		issues = append(issues, custom...)
	}

	for _, issue := range issues {
		o.publish(domain.NewEvent(domain.EventValidationIssue, state.RunID, state.Turn, domain.PhaseValidation, o.clock()).
			WithPayload("issue", issue))
	}

	rec, err := domain.NewMetricRecord("validation_issues", state.Turn, len(issues), "", o.clock())
	if err != nil {
		return state, err
	}
	state = state.WithMetric(rec)
	if len(issues) > 0 {
		state = state.WithMeta(fmt.Sprintf("validation_turn_%d", state.Turn), strings.Join(issues, "; "))
	}
	return state, nil
}

// runCustomChecks asks the validator model to evaluate the scenario's custom
// checks against the turn's artifacts. A failed call drops the custom checks
// for this turn rather than aborting it; only a fail-closed pricing error is
// fatal.
func (p *validationPhase) runCustomChecks(ctx context.Context, state *domain.ScenarioState) ([]string, error) {
	o := p.orch

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are reviewing turn %d of a simulation for consistency.\n\n", state.Turn)
	if state.World != nil {
		sb.WriteString("## World state\n\n")
		sb.WriteString(state.World.Narrative)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Decisions\n\n")
	for _, name := range state.ActorOrder {
		if d, ok := state.Decisions[name]; ok {
			fmt.Fprintf(&sb, "%s: %s\n", name, d.Action)
		}
	}
	sb.WriteString("\n## Checks\n\n")
	for _, check := range p.checks {
		fmt.Fprintf(&sb, "- %s\n", check)
	}
	sb.WriteString("\nFor every violated check, output one line starting with \"ISSUE:\". Output nothing else.\n")

	reply, err := o.invoke(ctx, state.RunID, "", state.Turn, domain.PhaseValidation, p.model, sb.String())
	if err != nil {
		if errors.Is(err, domain.ErrUnknownModel) {
			return nil, err
		}
		o.logger.Warn("validation call failed, custom checks skipped",
			"run_id", state.RunID,
			"turn", state.Turn,
			"err", err,
		)
		return nil, nil
	}

	var issues []string
	for _, line := range strings.Split(reply.Text, "\n") {
		if rest, found := strings.CutPrefix(strings.TrimSpace(line), "ISSUE:"); found {
			issues = append(issues, strings.TrimSpace(rest))
		}
	}
	return issues, nil
}

// persistencePhase archives the turn's artifacts and writes the full snapshot
// durably. This is the only point where state reaches the store during normal
// execution.
type persistencePhase struct {
	orch *Orchestrator
}

func (p *persistencePhase) Name() domain.PhaseName {
	return domain.PhasePersistence
}

func (p *persistencePhase) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	out := state.WithTurnArchived()
	if err := p.orch.store.Save(ctx, out.RunID, out); err != nil {
		return state, fmt.Errorf("failed to persist turn %d: %w", state.Turn, err)
	}
	return out, nil
}

package domain

import (
	"time"
)

// TurnArchive holds the turn-scoped artifacts of one completed turn. The
// archive map is keyed by turn number; encoding/json converts integer keys to
// strings on disk and back to int on load, so snapshots round-trip losslessly.
type TurnArchive struct {
	Turn           int                 `json:"turn"`
	World          *WorldState         `json:"world,omitempty"`
	Decisions      map[string]Decision `json:"decisions,omitempty"`
	Communications []Communication     `json:"communications,omitempty"`
}

// ScenarioState is the immutable root snapshot of a run at a point in time.
//
// Every With* transform returns a new top-level instance; unaffected
// substructures are shared by reference. The receiver is never modified.
type ScenarioState struct {
	ScenarioID string     `json:"scenario_id"`
	RunID      string     `json:"run_id"`
	Status     Status     `json:"status"`
	HaltReason HaltReason `json:"halt_reason,omitempty"`
	Turn       int        `json:"turn"`
	Phase      PhaseName  `json:"phase,omitempty"`

	World  *WorldState           `json:"world,omitempty"`
	Actors map[string]ActorState `json:"actors"`

	// Turn-scoped: only the in-progress turn's entries live here. Completed
	// turns are archived into Archives and these are reset.
	Communications []Communication     `json:"communications,omitempty"`
	Decisions      map[string]Decision `json:"decisions,omitempty"`

	// Full-history lists. Totals are derived from Costs by summation.
	Metrics []MetricRecord `json:"metrics,omitempty"`
	Costs   []CostRecord   `json:"costs,omitempty"`

	Archives map[int]TurnArchive `json:"archives,omitempty"`

	// ActorOrder is the declared actor order; decision merges follow it.
	ActorOrder []string `json:"actor_order"`

	Meta            map[string]string `json:"meta,omitempty"`
	TriggeredEvents []string          `json:"triggered_events,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewScenarioState creates a run at turn 0 with status CREATED. Actor order
// follows the declaration order given by the caller.
func NewScenarioState(scenarioID, runID string, actors []ActorState) *ScenarioState {
	byName := make(map[string]ActorState, len(actors))
	order := make([]string, 0, len(actors))
	for _, a := range actors {
		byName[a.Name] = a
		order = append(order, a.Name)
	}
	return &ScenarioState{
		ScenarioID: scenarioID,
		RunID:      runID,
		Status:     StatusCreated,
		Actors:     byName,
		ActorOrder: order,
	}
}

// clone produces a shallow copy. Transforms copy the collections they touch.
func (s *ScenarioState) clone() *ScenarioState {
	out := *s
	return &out
}

// WithTurn advances the turn counter. Turn numbers are monotonic
// non-decreasing across a run.
func (s *ScenarioState) WithTurn(turn int) *ScenarioState {
	if turn < s.Turn {
		turn = s.Turn
	}
	out := s.clone()
	out.Turn = turn
	return out
}

// WithPhase records the phase currently executing.
func (s *ScenarioState) WithPhase(phase PhaseName) *ScenarioState {
	out := s.clone()
	out.Phase = phase
	return out
}

// WithStatus moves the run to a new lifecycle status. Illegal transitions
// return the state unchanged together with ErrInvalidTransition.
func (s *ScenarioState) WithStatus(status Status) (*ScenarioState, error) {
	if status != s.Status && !s.Status.CanTransitionTo(status) {
		return s, ErrInvalidTransition
	}
	out := s.clone()
	out.Status = status
	if status != StatusHalted {
		out.HaltReason = HaltNone
	}
	return out, nil
}

// WithHalted moves the run to HALTED with the given reason.
func (s *ScenarioState) WithHalted(reason HaltReason) (*ScenarioState, error) {
	out, err := s.WithStatus(StatusHalted)
	if err != nil {
		return s, err
	}
	out.HaltReason = reason
	return out, nil
}

// WithWorldState replaces the world snapshot wholesale.
func (s *ScenarioState) WithWorldState(w *WorldState) *ScenarioState {
	out := s.clone()
	out.World = w
	return out
}

// WithActor replaces (or adds) an actor. New actors are appended to the
// declared order.
func (s *ScenarioState) WithActor(a ActorState) *ScenarioState {
	out := s.clone()
	out.Actors = copyMap(s.Actors)
	if _, known := s.Actors[a.Name]; !known {
		out.ActorOrder = append(copySlice(s.ActorOrder), a.Name)
	}
	out.Actors[a.Name] = a
	return out
}

// WithDecision records d for the current turn and folds it into the acting
// actor's rolling history.
func (s *ScenarioState) WithDecision(d Decision) *ScenarioState {
	out := s.clone()
	out.Decisions = copyMap(s.Decisions)
	if out.Decisions == nil {
		out.Decisions = make(map[string]Decision, 1)
	}
	out.Decisions[d.Actor] = d
	if actor, ok := s.Actors[d.Actor]; ok {
		out.Actors = copyMap(s.Actors)
		out.Actors[d.Actor] = actor.withDecision(d)
	}
	return out
}

// WithCommunication appends a turn-scoped communication.
func (s *ScenarioState) WithCommunication(c Communication) *ScenarioState {
	out := s.clone()
	out.Communications = appendCopy(s.Communications, c)
	return out
}

// WithCost appends a cost record to the full-history ledger list.
func (s *ScenarioState) WithCost(rec CostRecord) *ScenarioState {
	out := s.clone()
	out.Costs = appendCopy(s.Costs, rec)
	return out
}

// WithMetric appends a metric record to the full-history list.
func (s *ScenarioState) WithMetric(rec MetricRecord) *ScenarioState {
	out := s.clone()
	out.Metrics = appendCopy(s.Metrics, rec)
	return out
}

// WithMeta sets one execution metadata entry.
func (s *ScenarioState) WithMeta(key, value string) *ScenarioState {
	out := s.clone()
	out.Meta = copyMap(s.Meta)
	if out.Meta == nil {
		out.Meta = make(map[string]string, 1)
	}
	out.Meta[key] = value
	return out
}

// WithTriggeredEvent records an exogenous event id as triggered.
func (s *ScenarioState) WithTriggeredEvent(id string) *ScenarioState {
	out := s.clone()
	out.TriggeredEvents = appendCopy(s.TriggeredEvents, id)
	return out
}

// WithStarted stamps the run start and moves it to RUNNING.
func (s *ScenarioState) WithStarted(now time.Time) (*ScenarioState, error) {
	out, err := s.WithStatus(StatusRunning)
	if err != nil {
		return s, err
	}
	t := now.UTC()
	out.StartedAt = &t
	return out, nil
}

// WithCompleted stamps the run end and moves it to COMPLETED.
func (s *ScenarioState) WithCompleted(now time.Time) (*ScenarioState, error) {
	out, err := s.WithStatus(StatusCompleted)
	if err != nil {
		return s, err
	}
	t := now.UTC()
	out.CompletedAt = &t
	return out, nil
}

// WithTurnArchived moves the current turn's turn-scoped artifacts into the
// archive map and clears them for the next turn.
func (s *ScenarioState) WithTurnArchived() *ScenarioState {
	out := s.clone()
	out.Archives = copyMap(s.Archives)
	if out.Archives == nil {
		out.Archives = make(map[int]TurnArchive, 1)
	}
	out.Archives[s.Turn] = TurnArchive{
		Turn:           s.Turn,
		World:          s.World,
		Decisions:      s.Decisions,
		Communications: s.Communications,
	}
	out.Decisions = nil
	out.Communications = nil
	return out
}

// TotalCost sums the cost ledger. Always derived, never cached.
func (s *ScenarioState) TotalCost() float64 {
	var total float64
	for _, rec := range s.Costs {
		total += rec.CostUSD
	}
	return total
}

// CostByActor sums costs per actor. System-level records group under "".
func (s *ScenarioState) CostByActor() map[string]float64 {
	out := make(map[string]float64)
	for _, rec := range s.Costs {
		out[rec.Actor] += rec.CostUSD
	}
	return out
}

// CostByPhase sums costs per phase.
func (s *ScenarioState) CostByPhase() map[PhaseName]float64 {
	out := make(map[PhaseName]float64)
	for _, rec := range s.Costs {
		out[rec.Phase] += rec.CostUSD
	}
	return out
}

// OrderedActors returns actor states in declaration order.
func (s *ScenarioState) OrderedActors() []ActorState {
	out := make([]ActorState, 0, len(s.ActorOrder))
	for _, name := range s.ActorOrder {
		if a, ok := s.Actors[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// appendCopy appends without sharing backing arrays between old and new
// state, so an old snapshot can never observe a later append.
func appendCopy[T any](in []T, v T) []T {
	out := make([]T, len(in)+1)
	copy(out, in)
	out[len(in)] = v
	return out
}

func copySlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

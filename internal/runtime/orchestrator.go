// Package runtime contains the turn orchestrator: the fixed phase pipeline,
// halting rules, retry handling, resumability and branching.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Itangalo/scenario-lab-sub001/internal/config"
	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/internal/model"
	"github.com/Itangalo/scenario-lab-sub001/internal/prompt"
	"github.com/Itangalo/scenario-lab-sub001/pkg/cache"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/events"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ledger"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// Orchestrator drives turns through the fixed phase pipeline, persists the
// state at turn boundaries and applies the halting rules. It holds the only
// mutable references in the core: the response cache and the cost ledger.
type Orchestrator struct {
	store   ports.SnapshotStore
	bus     *events.Bus
	cache   *cache.Cache
	ledger  *ledger.Ledger
	client  ports.ModelClient
	prompts ports.PromptBuilder
	logger  *slog.Logger
	retry   RetryPolicy
	clock   func() time.Time

	endTurn        int
	creditLimitUSD float64 // 0 = unlimited
	bypassCache    bool
	callTimeout    time.Duration
	worldModel     string

	phases map[domain.PhaseName]ports.Phase

	mu        sync.Mutex
	pauseReq  bool
	cancelReq bool
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithBus attaches the event bus.
func WithBus(b *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithCache attaches the response cache. Without one every call goes to the
// transport.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLedger overrides the cost ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithModelClient sets the text-generation transport.
func WithModelClient(c ports.ModelClient) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithPromptBuilder overrides the prompt constructor.
func WithPromptBuilder(p ports.PromptBuilder) Option {
	return func(o *Orchestrator) { o.prompts = p }
}

// WithLogger configures the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithEndTurn sets the turn at which the run completes.
func WithEndTurn(n int) Option {
	return func(o *Orchestrator) { o.endTurn = n }
}

// WithCreditLimit sets the cost ceiling in USD. Zero disables the check.
func WithCreditLimit(usd float64) Option {
	return func(o *Orchestrator) { o.creditLimitUSD = usd }
}

// WithCacheBypass forces every lookup to miss while still recording entries.
func WithCacheBypass(bypass bool) Option {
	return func(o *Orchestrator) { o.bypassCache = bypass }
}

// WithCallTimeout bounds each outbound model call. Timeouts are retried as
// transient failures.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithWorldModel sets the model used for world updates. Defaults to the first
// actor's model.
func WithWorldModel(m string) Option {
	return func(o *Orchestrator) { o.worldModel = m }
}

// WithCommunication enables the communication phase with the given pairs.
// An empty pair list makes every actor broadcast publicly.
func WithCommunication(pairs []config.ActorPair) Option {
	return func(o *Orchestrator) {
		o.RegisterPhase(&communicationPhase{orch: o, pairs: pairs})
	}
}

// WithValidation enables the validation phase. Custom checks are evaluated by
// the given model; with an empty model only the built-in checks run.
func WithValidation(checks []string, validatorModel string) Option {
	return func(o *Orchestrator) {
		o.RegisterPhase(&validationPhase{orch: o, checks: checks, model: validatorModel})
	}
}

// withClock overrides the time source. Used by tests.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = now }
}

// New creates an orchestrator persisting to store. Decision, world-update and
// persistence phases are always registered; communication and validation only
// run when enabled through options.
func New(store ports.SnapshotStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		bus:     events.NewBus(),
		ledger:  ledger.New(ledger.DefaultPrices),
		client:  model.NewScriptedClient(),
		prompts: prompt.New(),
		logger:  logging.NewNop(),
		retry:   DefaultRetryPolicy,
		clock:   time.Now,
		endTurn: config.DefaultEndTurn,
		phases:  make(map[domain.PhaseName]ports.Phase),
	}
	o.RegisterPhase(&decisionPhase{orch: o})
	o.RegisterPhase(&worldUpdatePhase{orch: o})
	o.RegisterPhase(&persistencePhase{orch: o})
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterPhase installs a phase implementation under its name. Phases not
// registered are skipped with a phase_skipped event for observability parity.
func (o *Orchestrator) RegisterPhase(p ports.Phase) {
	o.phases[p.Name()] = p
}

// Bus exposes the event bus for subscribers.
func (o *Orchestrator) Bus() *events.Bus {
	return o.bus
}

// Ledger exposes the cost ledger (e.g. for estimation).
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// RequestPause asks the orchestrator to pause. Honored at the next phase
// boundary; the in-flight phase always runs to completion first.
func (o *Orchestrator) RequestPause() {
	o.mu.Lock()
	o.pauseReq = true
	o.mu.Unlock()
}

// RequestCancel asks the orchestrator to halt the run. Honored at the next
// phase boundary.
func (o *Orchestrator) RequestCancel() {
	o.mu.Lock()
	o.cancelReq = true
	o.mu.Unlock()
}

// interrupted reports a pending pause or cancel request, consuming it.
func (o *Orchestrator) interrupted(ctx context.Context) (pause, cancel bool) {
	if ctx.Err() != nil {
		return false, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	pause, cancel = o.pauseReq, o.cancelReq
	o.pauseReq, o.cancelReq = false, false
	return pause, cancel
}

// Execute runs the scenario from its current state until a terminal status, a
// halt, or a pause. The returned state is always the last persisted snapshot.
func (o *Orchestrator) Execute(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	var err error
	if state.Status == domain.StatusCreated {
		state, err = state.WithStarted(o.clock())
		if err != nil {
			return state, err
		}
	} else if state.Status != domain.StatusRunning {
		state, err = state.WithStatus(domain.StatusRunning)
		if err != nil {
			return state, fmt.Errorf("run %s cannot start from status %s: %w", state.RunID, state.Status, err)
		}
	}

	for state.Turn < o.endTurn {
		if done, out, err := o.checkInterrupt(ctx, state); done {
			return out, err
		}
		// A run resumed while still over its limit halts again before any
		// phase of the next turn executes.
		if o.creditLimitUSD > 0 && state.TotalCost() > o.creditLimitUSD {
			return o.halt(ctx, state, domain.HaltCreditLimit)
		}

		next, halted, err := o.executeTurn(ctx, state)
		if err != nil {
			return o.fail(ctx, next, err)
		}
		state = next
		if halted {
			return state, nil
		}
	}

	return o.complete(ctx, state)
}

// Resume loads the latest snapshot of a run and continues it from the turn
// following the snapshot's turn. Completed and failed runs are rejected.
// Resuming an unmodified halted snapshot twice is idempotent: each completed
// turn is archived exactly once and persisted at its own boundary.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	state, err := o.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !state.Status.Resumable() {
		return nil, fmt.Errorf("run %s has status %s: %w", runID, state.Status, domain.ErrNotResumable)
	}
	return o.Execute(ctx, state)
}

// checkInterrupt handles pause and cancel requests at a turn boundary.
func (o *Orchestrator) checkInterrupt(ctx context.Context, state *domain.ScenarioState) (bool, *domain.ScenarioState, error) {
	pause, cancel := o.interrupted(ctx)
	switch {
	case cancel:
		out, err := o.halt(ctx, state, domain.HaltManual)
		return true, out, err
	case pause:
		out, err := state.WithStatus(domain.StatusPaused)
		if err != nil {
			return true, state, err
		}
		if err := o.store.Save(ctx, out.RunID, out); err != nil {
			return true, out, err
		}
		o.logger.Info("run paused", "run_id", out.RunID, "turn", out.Turn)
		return true, out, nil
	}
	return false, nil, nil
}

// executeTurn drives one turn through the phase pipeline. It returns the new
// state, whether the run halted, and any fatal phase error. Pause and cancel
// are observed between phases: the partial turn's artifacts are discarded and
// the previous turn-boundary snapshot is persisted with the new status, so
// resuming re-executes the turn from scratch (replayed calls hit the response
// cache). Cost records from the partial turn are kept: those calls were
// billed regardless of the interrupt.
func (o *Orchestrator) executeTurn(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, bool, error) {
	turn := state.Turn + 1
	working := state.WithTurn(turn)
	runID := working.RunID

	o.publish(domain.NewEvent(domain.EventTurnStarted, runID, turn, "", o.clock()))
	o.logger.Info("turn started", "run_id", runID, "turn", turn)

	breached := false
	for _, name := range domain.PhaseOrder {
		if pause, cancel := o.interrupted(ctx); pause || cancel {
			kept := keepPartialCosts(state, working)
			if cancel {
				out, err := o.halt(ctx, kept, domain.HaltManual)
				return out, true, err
			}
			out, err := kept.WithStatus(domain.StatusPaused)
			if err != nil {
				return state, true, err
			}
			if err := o.store.Save(ctx, runID, out); err != nil {
				return out, true, err
			}
			o.logger.Info("run paused mid-turn, partial turn discarded", "run_id", runID, "turn", turn, "phase", string(name))
			return out, true, nil
		}

		ph, registered := o.phases[name]
		if !registered {
			o.publish(domain.NewEvent(domain.EventPhaseSkipped, runID, turn, name, o.clock()))
			continue
		}

		working = working.WithPhase(name)
		next, err := ph.Execute(ctx, working)
		if err != nil {
			return o.drainCosts(working), false, fmt.Errorf("phase %s failed: %w", name, err)
		}
		working = o.drainCosts(next)

		o.publish(domain.NewEvent(domain.EventPhaseCompleted, runID, turn, name, o.clock()))

		if !breached && o.creditLimitUSD > 0 && working.TotalCost() > o.creditLimitUSD {
			breached = true
			o.publish(domain.NewEvent(domain.EventCreditWarning, runID, turn, name, o.clock()).
				WithPayload("total_usd", working.TotalCost()).
				WithPayload("limit_usd", o.creditLimitUSD))
			o.logger.Warn("credit limit exceeded, finishing current turn",
				"run_id", runID,
				"total_usd", working.TotalCost(),
				"limit_usd", o.creditLimitUSD,
			)
		}
	}

	o.publish(domain.NewEvent(domain.EventTurnCompleted, runID, turn, "", o.clock()).
		WithPayload("total_usd", working.TotalCost()))

	if breached {
		out, err := o.halt(ctx, working, domain.HaltCreditLimit)
		return out, true, err
	}
	return working, false, nil
}

// keepPartialCosts folds the cost records the working state accumulated past
// the last turn boundary back into the boundary snapshot. Used when a turn is
// abandoned mid-way: its decisions and world are re-derived on resume, but
// every billed call keeps exactly one durable record.
func keepPartialCosts(base, working *domain.ScenarioState) *domain.ScenarioState {
	out := base
	for _, rec := range working.Costs[len(base.Costs):] {
		out = out.WithCost(rec)
	}
	return out
}

// drainCosts folds the ledger's pending records into the state and emits one
// cost event per record.
func (o *Orchestrator) drainCosts(state *domain.ScenarioState) *domain.ScenarioState {
	for _, rec := range o.ledger.Drain() {
		state = state.WithCost(rec)
		o.publish(domain.NewEvent(domain.EventCostIncurred, state.RunID, rec.Turn, rec.Phase, o.clock()).
			WithPayload("actor", rec.Actor).
			WithPayload("model", rec.Model).
			WithPayload("cost_usd", rec.CostUSD).
			WithPayload("cached", rec.Meta["cached"] == "true"))
	}
	return state
}

// halt persists the state as HALTED with the given reason.
func (o *Orchestrator) halt(ctx context.Context, state *domain.ScenarioState, reason domain.HaltReason) (*domain.ScenarioState, error) {
	out, err := state.WithHalted(reason)
	if err != nil {
		return state, err
	}
	if err := o.store.Save(ctx, out.RunID, out); err != nil {
		return out, err
	}
	o.publish(domain.NewEvent(domain.EventScenarioHalted, out.RunID, out.Turn, "", o.clock()).
		WithPayload("reason", string(reason)))
	o.logger.Info("run halted", "run_id", out.RunID, "turn", out.Turn, "reason", string(reason))
	return out, nil
}

// complete persists the state as COMPLETED.
func (o *Orchestrator) complete(ctx context.Context, state *domain.ScenarioState) (*domain.ScenarioState, error) {
	out, err := state.WithCompleted(o.clock())
	if err != nil {
		return state, err
	}
	if err := o.store.Save(ctx, out.RunID, out); err != nil {
		return out, err
	}
	o.publish(domain.NewEvent(domain.EventScenarioFinished, out.RunID, out.Turn, "", o.clock()).
		WithPayload("total_usd", out.TotalCost()))
	o.logger.Info("run completed", "run_id", out.RunID, "turn", out.Turn, "total_usd", out.TotalCost())
	return out, nil
}

// fail persists diagnostic state and marks the run FAILED.
func (o *Orchestrator) fail(ctx context.Context, state *domain.ScenarioState, cause error) (*domain.ScenarioState, error) {
	out, err := state.WithStatus(domain.StatusFailed)
	if err != nil {
		out = state
	}
	out = out.WithMeta("failure", cause.Error())
	if saveErr := o.store.Save(ctx, out.RunID, out); saveErr != nil {
		o.logger.Error("failed to persist diagnostic state", "run_id", out.RunID, "err", saveErr)
	}
	o.publish(domain.NewEvent(domain.EventScenarioFailed, out.RunID, out.Turn, "", o.clock()).
		WithPayload("error", cause.Error()))
	o.logger.Error("run failed", "run_id", out.RunID, "turn", out.Turn, "err", cause)
	return out, cause
}

func (o *Orchestrator) publish(evt domain.Event) {
	if o.bus != nil {
		o.bus.Publish(evt)
	}
}

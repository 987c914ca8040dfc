package scenariolab

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Itangalo/scenario-lab-sub001/internal/config"
	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/internal/model"
	"github.com/Itangalo/scenario-lab-sub001/internal/runtime"
	"github.com/Itangalo/scenario-lab-sub001/pkg/adapters/memory"
	"github.com/Itangalo/scenario-lab-sub001/pkg/cache"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/events"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ledger"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// scenarioMetaKey stores the raw scenario definition inside each snapshot so
// a run can be resumed from the snapshot alone, without the original file.
const scenarioMetaKey = "scenario_config"

// DefaultWorkers bounds how many background runs execute concurrently.
const DefaultWorkers = 4

// Engine is the high-level entry point. It owns the long-lived pieces shared
// across runs (snapshot store, event bus, response cache, price table) and
// builds one orchestrator per run.
type Engine struct {
	store       ports.SnapshotStore
	bus         *events.Bus
	cache       *cache.Cache
	mirror      *cache.SQLiteMirror
	client      ports.ModelClient
	prices      ledger.PriceTable
	logger      *slog.Logger
	retry       *runtime.RetryPolicy
	callTimeout time.Duration
	workers     int

	pool     *runtime.Pool
	poolStop context.CancelFunc

	mu     sync.Mutex
	active map[string]*runtime.Orchestrator
}

// Option configures the Engine.
type Option func(*Engine)

// WithStore sets the snapshot store. Defaults to the in-memory store.
func WithStore(s ports.SnapshotStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithBus sets the shared event bus.
func WithBus(b *events.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithCache sets the response cache, overriding the environment-driven default.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithModelClient sets the text-generation transport for all runs.
func WithModelClient(c ports.ModelClient) Option {
	return func(e *Engine) { e.client = c }
}

// WithPrices sets the model price table.
func WithPrices(p ledger.PriceTable) Option {
	return func(e *Engine) { e.prices = p }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRetryPolicy overrides the per-call retry policy for all runs.
func WithRetryPolicy(p runtime.RetryPolicy) Option {
	return func(e *Engine) { e.retry = &p }
}

// WithCallTimeout bounds each outbound model call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout = d }
}

// WithWorkers sets how many background runs may execute concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New builds an Engine. Unset pieces fall back to environment-driven
// defaults: the response cache honors SCENARIOLAB_CACHE settings and the
// model client uses the Anthropic API when ANTHROPIC_API_KEY is present,
// the offline scripted client otherwise.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		workers: DefaultWorkers,
		active:  make(map[string]*runtime.Orchestrator),
	}
	for _, opt := range opts {
		opt(e)
	}

	env := config.LoadEnv()

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.New()
	}
	if e.prices == nil {
		e.prices = ledger.DefaultPrices
	}
	if e.client == nil {
		if env.AnthropicAPIKey != "" {
			e.client = model.NewAnthropicClient(env.AnthropicAPIKey)
		} else {
			e.client = model.NewScriptedClient()
		}
	}
	if e.bus == nil {
		e.bus = events.NewBus(events.WithLogger(e.logger))
	}

	if e.cache == nil && env.CacheEnabled {
		cacheOpts := []cache.Option{cache.WithLogger(e.logger)}
		if env.CacheTTL > 0 {
			cacheOpts = append(cacheOpts, cache.WithTTL(env.CacheTTL))
		}
		if env.CacheDir != "" {
			mirror, err := cache.NewSQLiteMirror(context.Background(), env.CacheDir)
			if err != nil {
				return nil, fmt.Errorf("failed to open cache mirror: %w", err)
			}
			e.mirror = mirror
			cacheOpts = append(cacheOpts, cache.WithMirror(mirror))
		}
		e.cache = cache.New(cacheOpts...)
	}

	poolCtx, cancel := context.WithCancel(context.Background())
	e.pool = runtime.NewPool(poolCtx, e.workers)
	e.poolStop = cancel
	return e, nil
}

// Close stops the background worker pool and releases the cache mirror.
func (e *Engine) Close() error {
	e.pool.Close()
	e.poolStop()
	if e.mirror != nil {
		return e.mirror.Close()
	}
	return nil
}

// Bus exposes the shared event bus for subscribers.
func (e *Engine) Bus() *events.Bus { return e.bus }

// CacheStats reports response cache counters, zero when caching is disabled.
func (e *Engine) CacheStats() cache.Stats {
	if e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

// RunOptions override per-run execution settings. Zero values defer to the
// scenario's own execution section.
type RunOptions struct {
	EndTurn        int
	CreditLimitUSD float64
	DryRun         bool
	BypassCache    bool
}

// Run executes a scenario definition synchronously and returns the final
// persisted state.
func (e *Engine) Run(ctx context.Context, scenario []byte, opts RunOptions) (*domain.ScenarioState, error) {
	cfg, err := config.Parse(scenario)
	if err != nil {
		return nil, err
	}
	state, err := e.newRun(ctx, cfg, scenario)
	if err != nil {
		return nil, err
	}
	orch, err := e.orchestratorFor(cfg, opts)
	if err != nil {
		return nil, err
	}

	e.track(state.RunID, orch)
	defer e.untrack(state.RunID)
	out, err := orch.Execute(ctx, state)
	e.forgetIfTerminal(out)
	return out, err
}

// RunFile is Run for a scenario file on disk.
func (e *Engine) RunFile(ctx context.Context, path string, opts RunOptions) (*domain.ScenarioState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return e.Run(ctx, data, opts)
}

// StartRun validates the scenario, persists the initial snapshot and executes
// the run on the background pool. The returned id can be used with Status,
// Pause and the event stream immediately.
func (e *Engine) StartRun(ctx context.Context, scenario []byte, opts RunOptions) (string, error) {
	cfg, err := config.Parse(scenario)
	if err != nil {
		return "", err
	}
	state, err := e.newRun(ctx, cfg, scenario)
	if err != nil {
		return "", err
	}
	orch, err := e.orchestratorFor(cfg, opts)
	if err != nil {
		return "", err
	}

	runID := state.RunID
	e.track(runID, orch)
	ok := e.pool.Submit(func(ctx context.Context) {
		defer e.untrack(runID)
		out, err := orch.Execute(ctx, state)
		if err != nil {
			e.logger.Error("background run failed", "run_id", runID, "err", err)
		}
		e.forgetIfTerminal(out)
	})
	if !ok {
		e.untrack(runID)
		return "", fmt.Errorf("engine is shutting down")
	}
	return runID, nil
}

// Status loads the latest persisted snapshot of a run.
func (e *Engine) Status(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	return e.store.Load(ctx, runID)
}

// ListRuns returns the ids of all persisted runs.
func (e *Engine) ListRuns(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// Pause requests that an executing run pause at its next phase boundary.
func (e *Engine) Pause(runID string) error {
	orch := e.lookup(runID)
	if orch == nil {
		return fmt.Errorf("no executing run %s: %w", runID, domain.ErrRunNotFound)
	}
	orch.RequestPause()
	return nil
}

// Cancel requests that an executing run halt at its next phase boundary.
func (e *Engine) Cancel(runID string) error {
	orch := e.lookup(runID)
	if orch == nil {
		return fmt.Errorf("no executing run %s: %w", runID, domain.ErrRunNotFound)
	}
	orch.RequestCancel()
	return nil
}

// Resume continues a paused or halted run synchronously from its latest
// snapshot. The scenario definition embedded in the snapshot restores the
// run's phase configuration.
func (e *Engine) Resume(ctx context.Context, runID string) (*domain.ScenarioState, error) {
	orch, state, err := e.resumableOrchestrator(ctx, runID)
	if err != nil {
		return nil, err
	}
	e.track(runID, orch)
	defer e.untrack(runID)
	out, err := orch.Execute(ctx, state)
	e.forgetIfTerminal(out)
	return out, err
}

// ResumeRun is Resume on the background pool. Resumability is checked before
// scheduling so callers get immediate rejection for terminal runs.
func (e *Engine) ResumeRun(ctx context.Context, runID string) error {
	orch, state, err := e.resumableOrchestrator(ctx, runID)
	if err != nil {
		return err
	}
	e.track(runID, orch)
	ok := e.pool.Submit(func(ctx context.Context) {
		defer e.untrack(runID)
		out, err := orch.Execute(ctx, state)
		if err != nil {
			e.logger.Error("background resume failed", "run_id", runID, "err", err)
		}
		e.forgetIfTerminal(out)
	})
	if !ok {
		e.untrack(runID)
		return fmt.Errorf("engine is shutting down")
	}
	return nil
}

// Branch copies a run at one of its archived turns into a new independent run
// and returns the new run id. The branch resumes execution from the turn
// after the branch point.
func (e *Engine) Branch(ctx context.Context, sourceRunID string, turn int) (string, error) {
	state, err := runtime.Branch(ctx, e.store, sourceRunID, turn, time.Now())
	if err != nil {
		return "", err
	}
	return state.RunID, nil
}

// newRun builds and persists the initial snapshot for a scenario.
func (e *Engine) newRun(ctx context.Context, cfg *config.ScenarioConfig, raw []byte) (*domain.ScenarioState, error) {
	runID := uuid.NewString()
	state := domain.NewScenarioState(cfg.Name, runID, cfg.ActorStates()).
		WithWorldState(cfg.InitialWorld(time.Now())).
		WithMeta(scenarioMetaKey, string(raw))
	for k, v := range cfg.Metadata {
		state = state.WithMeta(k, v)
	}
	if err := e.store.Save(ctx, runID, state); err != nil {
		return nil, fmt.Errorf("failed to persist initial snapshot: %w", err)
	}
	return state, nil
}

// resumableOrchestrator loads a run, rejects terminal statuses and rebuilds
// the orchestrator from the scenario definition embedded in the snapshot.
func (e *Engine) resumableOrchestrator(ctx context.Context, runID string) (*runtime.Orchestrator, *domain.ScenarioState, error) {
	state, err := e.store.Load(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if !state.Status.Resumable() {
		return nil, nil, fmt.Errorf("run %s has status %s: %w", runID, state.Status, domain.ErrNotResumable)
	}
	raw, ok := state.Meta[scenarioMetaKey]
	if !ok {
		return nil, nil, fmt.Errorf("run %s snapshot carries no scenario definition", runID)
	}
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("run %s snapshot has an invalid scenario definition: %w", runID, err)
	}
	orch, err := e.orchestratorFor(cfg, RunOptions{})
	if err != nil {
		return nil, nil, err
	}
	return orch, state, nil
}

// orchestratorFor builds a per-run orchestrator. The cache and bus are shared
// across runs; the ledger is per-run so pending cost records never mix.
func (e *Engine) orchestratorFor(cfg *config.ScenarioConfig, opts RunOptions) (*runtime.Orchestrator, error) {
	exec, err := cfg.ExecutionSettings()
	if err != nil {
		return nil, err
	}

	endTurn := exec.EndTurn
	if opts.EndTurn > 0 {
		endTurn = opts.EndTurn
	}
	credit := exec.CreditLimitUSD
	if opts.CreditLimitUSD > 0 {
		credit = opts.CreditLimitUSD
	}
	client := e.client
	if opts.DryRun || exec.DryRun {
		client = model.NewScriptedClient()
	}

	orchOpts := []runtime.Option{
		runtime.WithBus(e.bus),
		runtime.WithLedger(ledger.New(e.prices)),
		runtime.WithModelClient(client),
		runtime.WithLogger(e.logger),
		runtime.WithEndTurn(endTurn),
		runtime.WithCreditLimit(credit),
		runtime.WithCacheBypass(opts.BypassCache),
	}
	if e.cache != nil {
		orchOpts = append(orchOpts, runtime.WithCache(e.cache))
	}
	if e.retry != nil {
		orchOpts = append(orchOpts, runtime.WithRetryPolicy(*e.retry))
	}
	if e.callTimeout > 0 {
		orchOpts = append(orchOpts, runtime.WithCallTimeout(e.callTimeout))
	}
	if cfg.World.Model != "" {
		orchOpts = append(orchOpts, runtime.WithWorldModel(cfg.World.Model))
	}
	if cfg.Communication.Enabled {
		orchOpts = append(orchOpts, runtime.WithCommunication(cfg.Communication.Pairs))
	}
	if cfg.Validation.Enabled {
		orchOpts = append(orchOpts, runtime.WithValidation(cfg.Validation.Checks, cfg.Validation.Model))
	}
	return runtime.New(e.store, orchOpts...), nil
}

// forgetIfTerminal drops a finished run's event replay buffer so a long-lived
// process does not retain one per run forever. Halted and paused runs keep
// theirs: they can resume and publish more events.
func (e *Engine) forgetIfTerminal(state *domain.ScenarioState) {
	if state != nil && state.Status.Terminal() {
		e.bus.Forget(state.RunID)
	}
}

func (e *Engine) track(runID string, orch *runtime.Orchestrator) {
	e.mu.Lock()
	e.active[runID] = orch
	e.mu.Unlock()
}

func (e *Engine) untrack(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

func (e *Engine) lookup(runID string) *runtime.Orchestrator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active[runID]
}

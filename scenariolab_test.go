package scenariolab_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scenariolab "github.com/Itangalo/scenario-lab-sub001"
	"github.com/Itangalo/scenario-lab-sub001/internal/model"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Two actors on mock-model: one decision each plus one world update per turn,
// 0.0002 USD per call against the default price table.
const scenarioYAML = `
name: trade-talks
world:
  narrative: Two trade blocs meet for negotiations.
actors:
  - name: Northern Union
    model: mock-model
    goals:
      - lower tariffs
  - name: Southern League
    model: mock-model
execution:
  end_turn: 3
`

func newTestEngine(t *testing.T, opts ...scenariolab.Option) *scenariolab.Engine {
	t.Helper()
	opts = append([]scenariolab.Option{
		scenariolab.WithModelClient(model.NewMockClient()),
	}, opts...)
	engine, err := scenariolab.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEngine_Run(t *testing.T) {
	engine := newTestEngine(t)

	state, err := engine.Run(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, 3, state.Turn)
	assert.Len(t, state.Archives, 3)
	assert.InDelta(t, 3*3*0.0002, state.TotalCost(), 1e-9)

	// The final snapshot is what Status serves.
	loaded, err := engine.Status(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, loaded.Status)

	ids, err := engine.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, state.RunID)
}

func TestEngine_Run_InvalidScenario(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Run(context.Background(), []byte("name: broken"), scenariolab.RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no actors")
}

func TestEngine_StartRun_ExecutesInBackground(t *testing.T) {
	engine := newTestEngine(t)

	runID, err := engine.StartRun(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		state, err := engine.Status(context.Background(), runID)
		return err == nil && state.Status == domain.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEngine_CreditHaltThenResume(t *testing.T) {
	engine := newTestEngine(t)

	// 0.0006 per turn; the limit is crossed during turn 1, which still
	// finishes and is archived before the run halts.
	state, err := engine.Run(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{CreditLimitUSD: 0.0005})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHalted, state.Status)
	assert.Equal(t, domain.HaltCreditLimit, state.HaltReason)
	assert.Equal(t, 1, state.Turn)

	// Resuming without the override lifts the limit; the run finishes.
	resumed, err := engine.Resume(context.Background(), state.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, resumed.Status)
	assert.Equal(t, 3, resumed.Turn)
	assert.Len(t, resumed.Archives, 3)
}

func TestEngine_ForgetsEventHistoryWhenRunEnds(t *testing.T) {
	engine := newTestEngine(t)

	// A halted run can resume and publish more events, so its replay buffer
	// survives the halt.
	halted, err := engine.Run(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{CreditLimitUSD: 0.0005})
	require.NoError(t, err)
	require.Equal(t, domain.StatusHalted, halted.Status)
	assert.NotEmpty(t, engine.Bus().History(halted.RunID))

	// Once the run reaches a terminal status its buffer is dropped.
	resumed, err := engine.Resume(context.Background(), halted.RunID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, resumed.Status)
	assert.Empty(t, engine.Bus().History(resumed.RunID))
}

func TestEngine_Resume_RejectsCompletedRun(t *testing.T) {
	engine := newTestEngine(t)

	state, err := engine.Run(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{})
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), state.RunID)
	assert.ErrorIs(t, err, domain.ErrNotResumable)
}

func TestEngine_Pause_UnknownRun(t *testing.T) {
	engine := newTestEngine(t)

	assert.ErrorIs(t, engine.Pause("missing"), domain.ErrRunNotFound)
	assert.ErrorIs(t, engine.Cancel("missing"), domain.ErrRunNotFound)
}

func TestEngine_Branch(t *testing.T) {
	engine := newTestEngine(t)

	src, err := engine.Run(context.Background(), []byte(scenarioYAML), scenariolab.RunOptions{})
	require.NoError(t, err)

	branchID, err := engine.Branch(context.Background(), src.RunID, 2)
	require.NoError(t, err)
	require.NotEqual(t, src.RunID, branchID)

	branch, err := engine.Status(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, 2, branch.Turn)
	assert.Len(t, branch.Archives, 2)

	// The branch carries the embedded scenario definition, so it resumes
	// like any halted run and plays out the remaining turn.
	resumed, err := engine.Resume(context.Background(), branchID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, resumed.Status)
	assert.Equal(t, 3, resumed.Turn)

	// The source run is untouched.
	srcAfter, err := engine.Status(context.Background(), src.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, srcAfter.Status)
}

func TestEngine_Estimate(t *testing.T) {
	engine := newTestEngine(t)

	est, err := engine.Estimate([]byte(scenarioYAML), scenariolab.RunOptions{})
	require.NoError(t, err)

	// 2 decisions + 1 world update, 0.006 USD per call at the assumed
	// token counts, 3 turns.
	assert.Equal(t, 3, est.Turns)
	assert.Equal(t, 3, est.CallsPerTurn)
	assert.InDelta(t, 0.018, est.PerTurnUSD, 1e-9)
	assert.InDelta(t, 0.054, est.WorstCaseUSD, 1e-9)
}

func TestEngine_Estimate_UnknownModelFailsClosed(t *testing.T) {
	engine := newTestEngine(t)

	unknown := `
name: unknown-model
world:
  narrative: x
actors:
  - name: Solo
    model: not-priced
`
	_, err := engine.Estimate([]byte(unknown), scenariolab.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrUnknownModel)
}

func TestEngine_DryRunUsesScriptedClient(t *testing.T) {
	mock := model.NewMockClient()
	engine := newTestEngine(t, scenariolab.WithModelClient(mock))

	scripted := `
name: dry
world:
  narrative: x
actors:
  - name: Solo
    model: mock-model
execution:
  end_turn: 1
`
	state, err := engine.Run(context.Background(), []byte(scripted), scenariolab.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Zero(t, mock.CallCount())
}

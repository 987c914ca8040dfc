package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/internal/model"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var (
	_ ports.ModelClient = (*model.AnthropicClient)(nil)
	_ ports.ModelClient = (*model.ScriptedClient)(nil)
	_ ports.ModelClient = (*model.MockClient)(nil)
)

func TestScriptedClient_Deterministic(t *testing.T) {
	c := model.NewScriptedClient()
	ctx := context.Background()

	a, err := c.Call(ctx, "mock-model", "same prompt")
	require.NoError(t, err)
	b, err := c.Call(ctx, "mock-model", "same prompt")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.Call(ctx, "mock-model", "different prompt")
	require.NoError(t, err)
	assert.NotEqual(t, a.Text, other.Text)
	assert.Equal(t, int64(3), c.Calls())
}

func TestScriptedClient_HonorsCancellation(t *testing.T) {
	c := model.NewScriptedClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "mock-model", "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockClient_TransientFailuresThenSuccess(t *testing.T) {
	transient := ports.NewModelError(errors.New("rate limited"), ports.FailureTransient)
	c := model.NewMockClient().WithTransientFailures("mock-model", 2, transient)
	ctx := context.Background()

	_, err := c.Call(ctx, "mock-model", "p")
	assert.ErrorIs(t, err, transient)
	_, err = c.Call(ctx, "mock-model", "p")
	assert.ErrorIs(t, err, transient)

	reply, err := c.Call(ctx, "mock-model", "p")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "ACTION:")
	assert.Equal(t, 3, c.CallCount())
}

func TestMockClient_PersistentError(t *testing.T) {
	boom := ports.NewModelError(errors.New("bad key"), ports.FailurePermanent)
	c := model.NewMockClient().WithError("broken-model", boom)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Call(ctx, "broken-model", "p")
		assert.ErrorIs(t, err, boom)
	}

	_, err := c.Call(ctx, "other-model", "p")
	assert.NoError(t, err)
}

func TestMockClient_RecordsCalls(t *testing.T) {
	c := model.NewMockClient()
	_, err := c.Call(context.Background(), "m1", "first")
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "m2", "second")
	require.NoError(t, err)

	require.Len(t, c.Calls, 2)
	assert.Equal(t, model.MockCall{Model: "m1", Prompt: "first"}, c.Calls[0])
	assert.Equal(t, model.MockCall{Model: "m2", Prompt: "second"}, c.Calls[1])
}

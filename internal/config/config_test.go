package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itangalo/scenario-lab-sub001/internal/config"
)

const validScenario = `
name: trade-talks
description: Two blocs negotiate tariffs.
world:
  narrative: "Two trade blocs meet after a year of rising tariffs."
actors:
  - name: Northern Union
    short_name: north
    model: mock-model
    goals: ["lower tariffs", "keep face"]
  - name: Southern League
    short_name: south
    model: mock-model
communication:
  enabled: true
  pairs:
    - from: Northern Union
      to: Southern League
metrics:
  - name: tension
    type: number
  - name: agreement_reached
    type: boolean
validation:
  enabled: true
  checks: ["decisions reference the current world state"]
execution:
  end_turn: 5
  credit_limit_usd: 2.5
  max_parallel: 2
metadata:
  author: lab
`

func TestParse_ValidScenario(t *testing.T) {
	cfg, err := config.Parse([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "trade-talks", cfg.Name)
	require.Len(t, cfg.Actors, 2)
	assert.Equal(t, "Northern Union", cfg.Actors[0].Name)
	assert.True(t, cfg.Communication.Enabled)

	exec, err := cfg.ExecutionSettings()
	require.NoError(t, err)
	assert.Equal(t, 5, exec.EndTurn)
	assert.Equal(t, 2.5, exec.CreditLimitUSD)
	assert.Equal(t, 2, exec.MaxParallel)
}

func TestParse_ExecutionDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
name: minimal
world:
  narrative: "A quiet town."
actors:
  - name: Mayor
    model: mock-model
`))
	require.NoError(t, err)

	exec, err := cfg.ExecutionSettings()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEndTurn, exec.EndTurn)
	assert.Zero(t, exec.CreditLimitUSD)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", `
world: {narrative: w}
actors: [{name: A, model: m}]
`},
		{"no actors", `
name: s
world: {narrative: w}
`},
		{"duplicate actor", `
name: s
world: {narrative: w}
actors: [{name: A, model: m}, {name: A, model: m}]
`},
		{"actor without model", `
name: s
world: {narrative: w}
actors: [{name: A}]
`},
		{"pair references unknown actor", `
name: s
world: {narrative: w}
actors: [{name: A, model: m}]
communication: {enabled: true, pairs: [{from: A, to: B}]}
`},
		{"self-referential pair", `
name: s
world: {narrative: w}
actors: [{name: A, model: m}, {name: B, model: m}]
communication: {enabled: true, pairs: [{from: A, to: A}]}
`},
		{"bad metric type", `
name: s
world: {narrative: w}
actors: [{name: A, model: m}]
metrics: [{name: x, type: tensor}]
`},
		{"negative credit limit", `
name: s
world: {narrative: w}
actors: [{name: A, model: m}]
execution: {credit_limit_usd: -1}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestActorStates_PreservesDeclarationOrder(t *testing.T) {
	cfg, err := config.Parse([]byte(validScenario))
	require.NoError(t, err)

	actors := cfg.ActorStates()
	require.Len(t, actors, 2)
	assert.Equal(t, "Northern Union", actors[0].Name)
	assert.Equal(t, "Southern League", actors[1].Name)
	assert.Equal(t, []string{"lower tariffs", "keep face"}, actors[0].Goals)
}

func TestInitialWorld(t *testing.T) {
	cfg, err := config.Parse([]byte(validScenario))
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	world := cfg.InitialWorld(now)
	assert.Equal(t, 0, world.Turn)
	assert.Contains(t, world.Narrative, "trade blocs")
	assert.Equal(t, now, world.CreatedAt)
}

// An explicit `meta: {}` must build the same state as an absent meta key:
// snapshots elide empty maps when serialized, so a non-nil empty map would not
// survive a save and reload.
func TestEmptyMetaNormalizedToNil(t *testing.T) {
	cfg, err := config.Parse([]byte(`
name: s
world:
  narrative: w
  meta: {}
actors:
  - name: A
    model: m
    meta: {}
  - name: B
    model: m
    meta:
      faction: east
`))
	require.NoError(t, err)

	actors := cfg.ActorStates()
	require.Len(t, actors, 2)
	assert.Nil(t, actors[0].Meta)
	assert.Equal(t, map[string]string{"faction": "east"}, actors[1].Meta)

	world := cfg.InitialWorld(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Nil(t, world.Meta)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "trade-talks", cfg.Name)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv(config.EnvCacheEnabled, "false")
	t.Setenv(config.EnvCacheDir, "/tmp/lab-cache")
	t.Setenv(config.EnvCacheTTL, "24h")

	env := config.LoadEnv()
	assert.False(t, env.CacheEnabled)
	assert.Equal(t, "/tmp/lab-cache", env.CacheDir)
	assert.Equal(t, 24*time.Hour, env.CacheTTL)
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv(config.EnvCacheEnabled, "")
	t.Setenv(config.EnvCacheTTL, "")

	env := config.LoadEnv()
	assert.True(t, env.CacheEnabled)
	assert.Zero(t, env.CacheTTL)
}

func TestLoadEnv_TTLInSeconds(t *testing.T) {
	t.Setenv(config.EnvCacheTTL, "3600")
	env := config.LoadEnv()
	assert.Equal(t, time.Hour, env.CacheTTL)
}

// Package config loads and validates scenario definitions. The execution core
// itself is content-agnostic; everything scenario-specific enters through the
// typed structures here.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// ScenarioConfig is a validated scenario definition.
type ScenarioConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	World  WorldConfig   `yaml:"world"`
	Actors []ActorConfig `yaml:"actors"`

	Communication CommunicationConfig `yaml:"communication,omitempty"`
	Metrics       []MetricConfig      `yaml:"metrics,omitempty"`
	Validation    ValidationConfig    `yaml:"validation,omitempty"`

	// Execution holds free-form execution settings. Decoded into
	// ExecutionConfig via mapstructure so scenario authors can add keys
	// without breaking older loaders.
	Execution map[string]any `yaml:"execution,omitempty"`

	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// WorldConfig seeds the initial world state.
type WorldConfig struct {
	Narrative string            `yaml:"narrative"`
	Model     string            `yaml:"model,omitempty"`
	Meta      map[string]string `yaml:"meta,omitempty"`
}

// ActorConfig declares one participant. Declaration order in the YAML list is
// the canonical actor order for decision merges.
type ActorConfig struct {
	Name      string            `yaml:"name"`
	ShortName string            `yaml:"short_name,omitempty"`
	Model     string            `yaml:"model"`
	Goals     []string          `yaml:"goals,omitempty"`
	Private   string            `yaml:"private,omitempty"`
	Meta      map[string]string `yaml:"meta,omitempty"`
}

// CommunicationConfig enables the communication phase and declares which
// pairs exchange messages each turn. An empty pair list with Enabled set
// means every actor broadcasts publicly.
type CommunicationConfig struct {
	Enabled bool        `yaml:"enabled"`
	Pairs   []ActorPair `yaml:"pairs,omitempty"`
}

// ActorPair names the two sides of a bilateral exchange.
type ActorPair struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MetricConfig declares one metric tracked across turns.
type MetricConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Type is "number", "string" or "boolean".
	Type string `yaml:"type"`
	// Actor scopes the metric to one actor; empty means scenario-level.
	Actor string `yaml:"actor,omitempty"`
}

// ValidationConfig enables the validation phase.
type ValidationConfig struct {
	Enabled bool     `yaml:"enabled"`
	Model   string   `yaml:"model,omitempty"`
	Checks  []string `yaml:"checks,omitempty"`
}

// ExecutionConfig is the typed view of ScenarioConfig.Execution.
type ExecutionConfig struct {
	EndTurn        int     `mapstructure:"end_turn"`
	CreditLimitUSD float64 `mapstructure:"credit_limit_usd"`
	MaxParallel    int     `mapstructure:"max_parallel"`
	DryRun         bool    `mapstructure:"dry_run"`
}

// DefaultEndTurn applies when the scenario does not declare one.
const DefaultEndTurn = 10

// Load reads and validates a scenario file.
func Load(path string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario definition.
func Parse(data []byte) (*ScenarioConfig, error) {
	var cfg ScenarioConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural consistency of the scenario definition.
func (c *ScenarioConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(c.Actors) == 0 {
		return fmt.Errorf("scenario %q declares no actors", c.Name)
	}

	seen := make(map[string]bool, len(c.Actors))
	for i, a := range c.Actors {
		if a.Name == "" {
			return fmt.Errorf("actor %d has no name", i)
		}
		if a.Model == "" {
			return fmt.Errorf("actor %q has no model", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate actor name %q", a.Name)
		}
		seen[a.Name] = true
	}

	for _, p := range c.Communication.Pairs {
		if !seen[p.From] {
			return fmt.Errorf("communication pair references unknown actor %q", p.From)
		}
		if !seen[p.To] {
			return fmt.Errorf("communication pair references unknown actor %q", p.To)
		}
		if p.From == p.To {
			return fmt.Errorf("communication pair %q -> %q is self-referential", p.From, p.To)
		}
	}

	metricNames := make(map[string]bool, len(c.Metrics))
	for _, m := range c.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric with empty name")
		}
		if metricNames[m.Name] {
			return fmt.Errorf("duplicate metric name %q", m.Name)
		}
		metricNames[m.Name] = true
		switch m.Type {
		case "number", "string", "boolean":
		default:
			return fmt.Errorf("metric %q has unsupported type %q", m.Name, m.Type)
		}
		if m.Actor != "" && !seen[m.Actor] {
			return fmt.Errorf("metric %q references unknown actor %q", m.Name, m.Actor)
		}
	}

	exec, err := c.ExecutionSettings()
	if err != nil {
		return err
	}
	if exec.EndTurn < 0 {
		return fmt.Errorf("end_turn cannot be negative")
	}
	if exec.CreditLimitUSD < 0 {
		return fmt.Errorf("credit_limit_usd cannot be negative")
	}
	return nil
}

// ExecutionSettings decodes the free-form execution map into its typed view,
// applying defaults for absent keys.
func (c *ScenarioConfig) ExecutionSettings() (ExecutionConfig, error) {
	exec := ExecutionConfig{EndTurn: DefaultEndTurn}
	if len(c.Execution) == 0 {
		return exec, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &exec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return exec, fmt.Errorf("failed to build execution decoder: %w", err)
	}
	if err := dec.Decode(c.Execution); err != nil {
		return exec, fmt.Errorf("invalid execution settings: %w", err)
	}
	if exec.EndTurn == 0 {
		exec.EndTurn = DefaultEndTurn
	}
	return exec, nil
}

// ActorStates converts the declared actors into their runtime representation,
// preserving declaration order.
func (c *ScenarioConfig) ActorStates() []domain.ActorState {
	out := make([]domain.ActorState, 0, len(c.Actors))
	for _, a := range c.Actors {
		out = append(out, domain.ActorState{
			Name:      a.Name,
			ShortName: a.ShortName,
			Model:     a.Model,
			Goals:     a.Goals,
			Private:   a.Private,
			Meta:      normalizeMeta(a.Meta),
		})
	}
	return out
}

// InitialWorld builds the turn-zero world state from the config.
func (c *ScenarioConfig) InitialWorld(now time.Time) *domain.WorldState {
	w := domain.NewWorldState(0, c.World.Narrative, now)
	w.Meta = normalizeMeta(c.World.Meta)
	return w
}

// normalizeMeta maps `meta: {}` to nil. Empty maps are elided when a snapshot
// is serialized and come back as nil, so treating the two forms as one keeps
// persisted states round-trip stable.
func normalizeMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

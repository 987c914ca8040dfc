package scenariolab

import (
	"github.com/Itangalo/scenario-lab-sub001/internal/config"
)

// Token assumptions for worst-case cost estimation. Prompts grow with
// accumulated history, so the input side is deliberately generous.
const (
	EstimateInputTokens  = 4000
	EstimateOutputTokens = 1000
)

// Estimate is the worst-case cost projection for a scenario, computed from
// the price table alone. No model is called.
type Estimate struct {
	Turns        int
	CallsPerTurn int
	PerTurnUSD   float64
	WorstCaseUSD float64
}

// Estimate projects the worst-case cost of running a scenario to completion.
// Pricing is fail-closed: a model absent from the price table is an error,
// the same as it would be during execution.
func (e *Engine) Estimate(scenario []byte, opts RunOptions) (Estimate, error) {
	cfg, err := config.Parse(scenario)
	if err != nil {
		return Estimate{}, err
	}
	exec, err := cfg.ExecutionSettings()
	if err != nil {
		return Estimate{}, err
	}

	turns := exec.EndTurn
	if opts.EndTurn > 0 {
		turns = opts.EndTurn
	}

	models := e.callsPerTurn(cfg)
	var perTurn float64
	for _, m := range models {
		cost, err := e.prices.Cost(m, EstimateInputTokens, EstimateOutputTokens)
		if err != nil {
			return Estimate{}, err
		}
		perTurn += cost
	}

	return Estimate{
		Turns:        turns,
		CallsPerTurn: len(models),
		PerTurnUSD:   perTurn,
		WorstCaseUSD: perTurn * float64(turns),
	}, nil
}

// callsPerTurn lists the model behind every call one turn makes, mirroring
// the phase pipeline: one decision per actor, one world update, one message
// per communication pair (or per actor when broadcasting), and one validator
// call when custom checks are configured.
func (e *Engine) callsPerTurn(cfg *config.ScenarioConfig) []string {
	var models []string
	for _, a := range cfg.Actors {
		models = append(models, a.Model)
	}

	worldModel := cfg.World.Model
	if worldModel == "" {
		worldModel = cfg.Actors[0].Model
	}
	models = append(models, worldModel)

	if cfg.Communication.Enabled {
		if len(cfg.Communication.Pairs) > 0 {
			byName := make(map[string]string, len(cfg.Actors))
			for _, a := range cfg.Actors {
				byName[a.Name] = a.Model
			}
			for _, p := range cfg.Communication.Pairs {
				models = append(models, byName[p.From])
			}
		} else {
			for _, a := range cfg.Actors {
				models = append(models, a.Model)
			}
		}
	}

	if cfg.Validation.Enabled && cfg.Validation.Model != "" && len(cfg.Validation.Checks) > 0 {
		models = append(models, cfg.Validation.Model)
	}
	return models
}

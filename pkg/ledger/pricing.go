package ledger

import (
	"fmt"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// ModelPrice is the per-million-token price of one model.
type ModelPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// PriceTable maps model identifiers to prices. An unrecognized model id is a
// hard pricing error: costs are never silently recorded as zero.
type PriceTable map[string]ModelPrice

// UnknownModelError is the fail-closed pricing error.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("no pricing for model %q", e.Model)
}

func (e *UnknownModelError) Is(target error) bool {
	return target == domain.ErrUnknownModel
}

// Cost computes the monetary cost of one call.
func (p PriceTable) Cost(model string, inputTokens, outputTokens int) (float64, error) {
	price, ok := p[model]
	if !ok {
		return 0, &UnknownModelError{Model: model}
	}
	cost := float64(inputTokens)/1e6*price.InputPerMTok +
		float64(outputTokens)/1e6*price.OutputPerMTok
	return cost, nil
}

// DefaultPrices covers the models the shipped scenarios reference. Scenario
// configs may extend or override this table.
var DefaultPrices = PriceTable{
	"claude-opus-4":   {InputPerMTok: 15.0, OutputPerMTok: 75.0},
	"claude-sonnet-4": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
	"claude-haiku-3":  {InputPerMTok: 0.25, OutputPerMTok: 1.25},
	"mock-model":      {InputPerMTok: 1.0, OutputPerMTok: 2.0},
}

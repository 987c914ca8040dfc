package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serialize renders the full state as an indented JSON snapshot document.
func Serialize(s *ScenarioState) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario state: %w", err)
	}
	return data, nil
}

// Deserialize reconstructs a state from a snapshot document.
//
// Integer archive keys are restored to int by encoding/json. Metric values
// decode with UseNumber and are normalized back to float64/string/bool, so
// Deserialize(Serialize(s)) equals s for every reachable state.
func Deserialize(data []byte) (*ScenarioState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var s ScenarioState
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario state: %w", err)
	}
	for i := range s.Metrics {
		v, err := normalizeDecoded(s.Metrics[i].Value)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", s.Metrics[i].Name, err)
		}
		s.Metrics[i].Value = v
	}
	return &s, nil
}

func normalizeDecoded(v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid numeric metric value %q: %w", n.String(), err)
		}
		return f, nil
	}
	return NormalizeMetricValue(v)
}

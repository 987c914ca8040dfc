package domain

import (
	"fmt"
	"time"
)

// CostRecord is one entry of the append-only cost ledger. An empty Actor
// means the cost is system-level (e.g. world update or validation calls).
//
// Totals are always derived by summation over the record list; no running
// counter is ever stored alongside it.
type CostRecord struct {
	Timestamp    time.Time         `json:"timestamp"`
	Actor        string            `json:"actor,omitempty"`
	Turn         int               `json:"turn"`
	Phase        PhaseName         `json:"phase"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	CostUSD      float64           `json:"cost_usd"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// MetricRecord is one extracted metric observation. An empty Actor means the
// metric is scenario-level. Value is a number (float64), string or bool.
type MetricRecord struct {
	Name      string    `json:"name"`
	Turn      int       `json:"turn"`
	Value     any       `json:"value"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMetricRecord builds a metric record. The value is normalized via
// NormalizeMetricValue so that serialized snapshots round-trip exactly.
func NewMetricRecord(name string, turn int, value any, actor string, now time.Time) (MetricRecord, error) {
	v, err := NormalizeMetricValue(value)
	if err != nil {
		return MetricRecord{}, err
	}
	return MetricRecord{
		Name:      name,
		Turn:      turn,
		Value:     v,
		Actor:     actor,
		Timestamp: now.UTC(),
	}, nil
}

// NormalizeMetricValue coerces numeric metric values to float64, the type
// they decode to from JSON. Strings and bools pass through unchanged. Any
// other type is rejected so every reachable state stays losslessly
// serializable.
func NormalizeMetricValue(v any) (any, error) {
	switch t := v.(type) {
	case string, bool, float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	default:
		return nil, fmt.Errorf("unsupported metric value type %T", v)
	}
}

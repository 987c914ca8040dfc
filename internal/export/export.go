// Package export renders derived documents from a run's state: the cost
// ledger and metric history as CSV, and per-turn markdown narratives. Exports
// are pure readers of ScenarioState; they never feed anything back into
// execution.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// CostCSV writes the full cost ledger, one row per record.
func CostCSV(w io.Writer, state *domain.ScenarioState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "turn", "phase", "actor", "model", "input_tokens", "output_tokens", "cost_usd", "cached"}); err != nil {
		return err
	}
	for _, rec := range state.Costs {
		cached := "false"
		if rec.Meta["cached"] == "true" {
			cached = "true"
		}
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			strconv.Itoa(rec.Turn),
			string(rec.Phase),
			rec.Actor,
			rec.Model,
			strconv.Itoa(rec.InputTokens),
			strconv.Itoa(rec.OutputTokens),
			strconv.FormatFloat(rec.CostUSD, 'f', -1, 64),
			cached,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MetricCSV writes the metric history, one row per record.
func MetricCSV(w io.Writer, state *domain.ScenarioState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "turn", "name", "actor", "value"}); err != nil {
		return err
	}
	for _, rec := range state.Metrics {
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			strconv.Itoa(rec.Turn),
			rec.Name,
			rec.Actor,
			fmt.Sprint(rec.Value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TurnNarratives writes one markdown document per world state per turn and
// one per actor decision per turn, under dir/turn-NN/.
func TurnNarratives(dir string, state *domain.ScenarioState) error {
	turns := make([]int, 0, len(state.Archives))
	for t := range state.Archives {
		turns = append(turns, t)
	}
	sort.Ints(turns)

	for _, turn := range turns {
		archive := state.Archives[turn]
		turnDir := filepath.Join(dir, fmt.Sprintf("turn-%02d", turn))
		if err := os.MkdirAll(turnDir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}

		if archive.World != nil {
			doc := worldDocument(state, turn, archive.World)
			if err := os.WriteFile(filepath.Join(turnDir, "world.md"), []byte(doc), 0644); err != nil {
				return fmt.Errorf("failed to write world narrative: %w", err)
			}
		}

		for _, name := range state.ActorOrder {
			d, ok := archive.Decisions[name]
			if !ok {
				continue
			}
			doc := actorDocument(state, turn, d)
			file := filepath.Join(turnDir, slug(name)+".md")
			if err := os.WriteFile(file, []byte(doc), 0644); err != nil {
				return fmt.Errorf("failed to write actor narrative: %w", err)
			}
		}
	}
	return nil
}

func worldDocument(state *domain.ScenarioState, turn int, world *domain.WorldState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: turn %d\n\n", state.ScenarioID, turn)
	fmt.Fprintf(&sb, "Run `%s`, generated %s.\n\n", state.RunID, world.CreatedAt.Format(time.RFC3339))
	sb.WriteString(world.Narrative)
	sb.WriteString("\n")
	return sb.String()
}

func actorDocument(state *domain.ScenarioState, turn int, d domain.Decision) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s: turn %d\n\n", d.Actor, turn)
	if d.Degraded {
		sb.WriteString("> Decision unavailable: this turn recorded a degraded placeholder.\n\n")
	}
	if len(d.Goals) > 0 {
		sb.WriteString("## Goals\n\n")
		for _, g := range d.Goals {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("\n")
	}
	if d.Reasoning != "" {
		sb.WriteString("## Reasoning\n\n")
		sb.WriteString(d.Reasoning)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Action\n\n")
	sb.WriteString(d.Action)
	sb.WriteString("\n")
	return sb.String()
}

// slug turns an actor name into a safe file name.
func slug(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, name)
	if out == "" {
		out = "actor"
	}
	return out
}

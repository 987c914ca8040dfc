package runtime

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

// Branch forks a new run from a source run at completed turn T. The branch
// copies the per-turn artifacts for turns 1..T, truncates the cost and metric
// histories to entries with turn <= T, and starts RUNNING so execution can
// continue at T+1. Aggregates are never copied forward: they are always
// recomputed from the truncated record lists.
func Branch(ctx context.Context, store ports.SnapshotStore, sourceRunID string, turn int, now time.Time) (*domain.ScenarioState, error) {
	src, err := store.Load(ctx, sourceRunID)
	if err != nil {
		return nil, err
	}
	if turn < 1 || turn > src.Turn {
		return nil, fmt.Errorf("turn %d not in [1, %d] for run %s: %w", turn, src.Turn, sourceRunID, domain.ErrBranchTurnOutOfRange)
	}

	// Deep copy through the snapshot codec so the branch shares no memory
	// with the source.
	data, err := domain.Serialize(src)
	if err != nil {
		return nil, err
	}
	out, err := domain.Deserialize(data)
	if err != nil {
		return nil, err
	}

	out.RunID = uuid.NewString()
	out.Turn = turn
	out.Status = domain.StatusRunning
	out.HaltReason = domain.HaltNone
	out.Phase = ""
	out.Decisions = nil
	out.Communications = nil
	out.CompletedAt = nil
	started := now.UTC()
	out.StartedAt = &started

	out.Archives = truncateArchives(out.Archives, turn)
	out.Costs = truncateCosts(out.Costs, turn)
	out.Metrics = truncateMetrics(out.Metrics, turn)

	if archive, ok := out.Archives[turn]; ok {
		out.World = archive.World
	}
	rebuildActorHistories(out)

	if out.Meta == nil {
		out.Meta = make(map[string]string, 2)
	}
	out.Meta["branched_from"] = sourceRunID
	out.Meta["branch_turn"] = strconv.Itoa(turn)

	if err := store.Save(ctx, out.RunID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func truncateArchives(in map[int]domain.TurnArchive, turn int) map[int]domain.TurnArchive {
	out := make(map[int]domain.TurnArchive, turn)
	for t, a := range in {
		if t <= turn {
			out[t] = a
		}
	}
	return out
}

func truncateCosts(in []domain.CostRecord, turn int) []domain.CostRecord {
	var out []domain.CostRecord
	for _, rec := range in {
		if rec.Turn <= turn {
			out = append(out, rec)
		}
	}
	return out
}

func truncateMetrics(in []domain.MetricRecord, turn int) []domain.MetricRecord {
	var out []domain.MetricRecord
	for _, rec := range in {
		if rec.Turn <= turn {
			out = append(out, rec)
		}
	}
	return out
}

// rebuildActorHistories replays the archived decisions in turn order so each
// actor's rolling history reflects only the turns the branch kept.
func rebuildActorHistories(state *domain.ScenarioState) {
	turns := make([]int, 0, len(state.Archives))
	for t := range state.Archives {
		turns = append(turns, t)
	}
	sort.Ints(turns)

	for name, actor := range state.Actors {
		var history []domain.Decision
		for _, t := range turns {
			if d, ok := state.Archives[t].Decisions[name]; ok {
				history = append(history, d)
			}
		}
		if len(history) > domain.MaxRecentDecisions {
			history = history[len(history)-domain.MaxRecentDecisions:]
		}
		actor.RecentDecisions = history
		state.Actors[name] = actor
	}
}

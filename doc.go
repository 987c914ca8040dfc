/*
Package scenariolab executes multi-actor, turn-based simulations driven by
language models.

A scenario declares a world, a set of actors with their own goals and private
context, and optional communication channels between them. Each turn moves
through a fixed phase pipeline: communication, decisions (one concurrent model
call per actor), a world update resolving the decisions into a new narrative,
validation of the turn's artifacts, and durable persistence of the full run
snapshot. Snapshots are immutable values; every transform returns a new
version, so a run can be resumed from any persisted turn boundary or branched
into an independent run at an archived turn.

Cost control is first-class: every model call is priced against a fail-closed
price table, recorded in the run's cost ledger, and checked against an
optional credit limit that halts the run at a turn boundary. A
content-addressed response cache makes replayed calls free and resumed runs
deterministic.

# Usage

	package main

	import (
		"context"
		"log"
		"os"

		scenariolab "github.com/Itangalo/scenario-lab-sub001"
	)

	func main() {
		engine, err := scenariolab.New()
		if err != nil {
			log.Fatal(err)
		}
		defer engine.Close()

		scenario, err := os.ReadFile("scenario.yaml")
		if err != nil {
			log.Fatal(err)
		}

		// Check the worst case before spending anything.
		est, err := engine.Estimate(scenario, scenariolab.RunOptions{})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("worst case: $%.2f", est.WorstCaseUSD)

		state, err := engine.Run(context.Background(), scenario,
			scenariolab.RunOptions{CreditLimitUSD: 5})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("run %s finished at turn %d for $%.4f",
			state.RunID, state.Turn, state.TotalCost())
	}

The model transport defaults to the Anthropic API when ANTHROPIC_API_KEY is
set and to an offline deterministic client otherwise; DryRun forces the
offline client regardless.
*/
package scenariolab

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	scenariolab "github.com/Itangalo/scenario-lab-sub001"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Execute a scenario to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().Int("end-turn", 0, "Stop after this many turns (overrides the scenario)")
	runCmd.Flags().Float64("credit-limit", 0, "Halt when total cost exceeds this USD amount (overrides the scenario)")
	runCmd.Flags().Bool("dry-run", false, "Use the offline scripted client instead of a model API")
	runCmd.Flags().Bool("no-cache", false, "Bypass the response cache for every call")
	runCmd.Flags().String("export", "", "Write cost CSV, metric CSV and turn narratives to this directory")
	rootCmd.AddCommand(runCmd)
}

func runScenario(cmd *cobra.Command, path string) error {
	engine, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	endTurn, _ := cmd.Flags().GetInt("end-turn")
	creditLimit, _ := cmd.Flags().GetFloat64("credit-limit")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	state, err := engine.RunFile(cmd.Context(), path, scenariolab.RunOptions{
		EndTurn:        endTurn,
		CreditLimitUSD: creditLimit,
		DryRun:         dryRun,
		BypassCache:    noCache,
	})
	if err != nil {
		return err
	}

	printSummary(state)

	if dir, _ := cmd.Flags().GetString("export"); dir != "" {
		if err := exportRun(dir, state); err != nil {
			return err
		}
		fmt.Printf("Exports written to %s\n", dir)
	}

	if state.Status == domain.StatusHalted {
		os.Exit(2)
	}
	return nil
}

func printSummary(state *domain.ScenarioState) {
	fmt.Printf("Run:    %s\n", state.RunID)
	fmt.Printf("Status: %s", state.Status)
	if state.HaltReason != domain.HaltNone {
		fmt.Printf(" (%s)", state.HaltReason)
	}
	fmt.Println()
	fmt.Printf("Turns:  %d\n", state.Turn)
	fmt.Printf("Cost:   $%.4f\n", state.TotalCost())
	for actor, usd := range state.CostByActor() {
		if actor == "" {
			actor = "(system)"
		}
		fmt.Printf("        %s: $%.4f\n", actor, usd)
	}
}

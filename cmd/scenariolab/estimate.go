package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	scenariolab "github.com/Itangalo/scenario-lab-sub001"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <scenario.yaml>",
	Short: "Project the worst-case cost of a scenario without calling any model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read scenario file: %w", err)
		}

		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		endTurn, _ := cmd.Flags().GetInt("end-turn")
		est, err := engine.Estimate(data, scenariolab.RunOptions{EndTurn: endTurn})
		if err != nil {
			return err
		}

		fmt.Printf("Turns:          %d\n", est.Turns)
		fmt.Printf("Calls per turn: %d\n", est.CallsPerTurn)
		fmt.Printf("Per turn:       $%.4f\n", est.PerTurnUSD)
		fmt.Printf("Worst case:     $%.4f\n", est.WorstCaseUSD)
		return nil
	},
}

func init() {
	estimateCmd.Flags().Int("end-turn", 0, "Project for this many turns instead of the scenario's setting")
	rootCmd.AddCommand(estimateCmd)
}

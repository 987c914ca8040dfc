package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch <run-id> <turn>",
	Short: "Fork a run at an archived turn into a new independent run",
	Long: `Branch copies a run's state as of one of its archived turns into a new run
with its own id. The source run is never modified. Pass --continue to
execute the branch's remaining turns immediately.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		turn, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("turn must be a number: %w", err)
		}

		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		branchID, err := engine.Branch(cmd.Context(), args[0], turn)
		if err != nil {
			return err
		}
		fmt.Printf("Branched %s at turn %d into %s\n", args[0], turn, branchID)

		if cont, _ := cmd.Flags().GetBool("continue"); cont {
			state, err := engine.Resume(cmd.Context(), branchID)
			if err != nil {
				return err
			}
			printSummary(state)
		}
		return nil
	},
}

func init() {
	branchCmd.Flags().Bool("continue", false, "Execute the branch immediately after forking")
	rootCmd.AddCommand(branchCmd)
}

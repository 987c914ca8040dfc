package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Itangalo/scenario-lab-sub001/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Check a scenario definition for consistency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		exec, err := cfg.ExecutionSettings()
		if err != nil {
			return err
		}
		fmt.Printf("Scenario %q is valid: %d actors, %d turns\n", cfg.Name, len(cfg.Actors), exec.EndTurn)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

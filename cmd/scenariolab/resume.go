package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a paused or halted run from its latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		state, err := engine.Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSummary(state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

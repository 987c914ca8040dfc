package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the latest snapshot of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		state, err := engine.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printSummary(state)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		ids, err := engine.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
}
